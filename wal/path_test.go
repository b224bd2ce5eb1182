package wal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRelativePathRejectsKnownBadCases(t *testing.T) {
	bad := []string{
		"/tmp",
		`C:\x`,
		"../a",
		"a/../b",
		"a\x00b",
		strings.Repeat("a", 256),
		"",
	}
	for _, p := range bad {
		assert.Error(t, ValidateRelativePath(p), "expected rejection for %q", p)
	}
}

func TestValidateRelativePathAcceptsOrdinaryNames(t *testing.T) {
	good := []string{"wal", "wal/wal.000001", "data/tables/users"}
	for _, p := range good {
		assert.NoError(t, ValidateRelativePath(p), "expected acceptance for %q", p)
	}
}
