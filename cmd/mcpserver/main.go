// Command mcpserver launches a stratadb instance behind an MCP endpoint.
package main

import (
	"flag"
	"log"

	stratadb "github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/config"
	"github.com/stratadb/stratadb/internal/logging"
	"github.com/stratadb/stratadb/internal/mcpserver"
)

func main() {
	dir := flag.String("dir", "", "data directory for WAL and snapshots (empty = in-memory only)")
	addr := flag.String("addr", "127.0.0.1:8089", "address to serve the MCP streamable-HTTP endpoint on")
	stdio := flag.Bool("stdio", false, "serve over stdio instead of HTTP, for subprocess-launched MCP clients")
	configPath := flag.String("config", "", "path to a JSON config file (overrides -dir defaults)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("mcpserver: load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg.Dir = *dir
	}

	logger := logging.New()

	var (
		db  *stratadb.DB
		err error
	)
	if cfg.Dir != "" {
		db, err = stratadb.Open(cfg, logger)
	} else {
		db, err = stratadb.New(cfg, logger)
	}
	if err != nil {
		log.Fatalf("mcpserver: open database: %v", err)
	}
	defer db.Close()

	srv := mcpserver.New(db)

	if *stdio {
		if err := srv.ServeStdio(); err != nil {
			log.Fatalf("mcpserver: serve stdio: %v", err)
		}
		return
	}

	log.Printf("mcpserver: listening on %s (endpoint /mcp)", *addr)
	if err := srv.Serve(*addr); err != nil {
		log.Fatalf("mcpserver: serve http: %v", err)
	}
}
