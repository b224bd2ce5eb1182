package gormdriver

import (
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
)

// Migrator embeds GORM's generic SQL-based migrator.Migrator rather than
// reimplementing all ~30 gorm.Migrator methods by hand: stratadb's frontend
// only translates a small command surface (no constraints, no foreign keys,
// no composite DDL), so the generic migrator's CREATE/DROP/ALTER TABLE
// statement generation, built entirely from Dialector.DataTypeOf/QuoteTo,
// already lands inside what Translator.Translate can parse.
type Migrator struct {
	migrator.Migrator
	Dialector *Dialector
}

func newMigrator(d *Dialector, db *gorm.DB) gorm.Migrator {
	return Migrator{
		Migrator: migrator.Migrator{
			Config: migrator.Config{
				DB:                          db,
				Dialector:                   d,
				CreateIndexAfterCreateTable: true,
			},
		},
		Dialector: d,
	}
}
