// Package main is a diagnostic tool for testing database connectivity and
// inspecting the stored registry. It connects with the server's configuration,
// prints the migration state and a row count per table, and exits non-zero on any
// failure so it can gate deployments in CI/CD pipelines.
//
// With -fix-dirty it also clears a dirty migration flag. golang-migrate marks a
// version dirty when a migration is interrupted, and refuses to run again until
// the flag is cleared.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/projectns/projectns/internal/config"
	"github.com/projectns/projectns/internal/db"
)

var tables = []string{"accounts", "projects", "project_marks", "project_contacts", "project_namespaces", "command_log"}

func main() {
	fixDirty := flag.Bool("fix-dirty", false, "clear a dirty migration flag")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Persistence.Backend != "postgres" {
		log.Fatalf("persistence.backend is %q; nothing to check", cfg.Persistence.Backend)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()
	fmt.Printf("Connected to %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}
	fmt.Printf("Migration state: version=%d, dirty=%v\n", version, dirty)

	if dirty {
		if !*fixDirty {
			log.Fatalf("Migration %d is dirty; rerun with -fix-dirty once the schema has been checked by hand", version)
		}
		if _, err := database.Exec("UPDATE schema_migrations SET dirty = false"); err != nil {
			log.Fatalf("Failed to fix dirty state: %v", err)
		}
		fmt.Println("Dirty flag cleared")
	}

	fmt.Println("\n=== TABLES ===")
	for _, table := range tables {
		var n int
		// #nosec G202 -- table names come from the fixed list above
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			log.Fatalf("Query on %s failed: %v", table, err)
		}
		fmt.Printf("%-20s %d\n", table, n)
	}
}
