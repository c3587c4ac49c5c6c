package main

import (
	"flag"
	"log"
	"os"

	"github.com/docmill/docmill/pkg/storage"
)

var (
	dbKind     = flag.String("db-kind", "sqlite", "Database kind: sqlite or mysql")
	dbURL      = flag.String("db-url", "document_tasks.db", "SQLite file path or MySQL DSN")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Backup path for a SQLite database before migration (default: <db-url>.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Docmill Schema Migration Tool")
	log.Println("=============================")

	log.Printf("Database: %s (%s)", *dbURL, *dbKind)
	log.Printf("Dry run: %v", *dryRun)

	// SQLite databases are a single file; copy it before touching the
	// schema. MySQL backups are the operator's problem.
	if !*dryRun && *dbKind == storage.DialectSQLite {
		if _, err := os.Stat(*dbURL); err == nil {
			backupFile := *backupPath
			if backupFile == "" {
				backupFile = *dbURL + ".backup"
			}
			log.Printf("Creating backup: %s", backupFile)
			if err := copyFile(*dbURL, backupFile); err != nil {
				log.Fatalf("Failed to create backup: %v", err)
			}
			log.Println("✓ Backup created successfully")
		}
	}

	store, err := storage.OpenForMigration(*dbKind, *dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	current, err := store.MigrationVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	target := storage.ExpectedVersion()
	log.Printf("Schema version: %d (this build expects %d)", current, target)

	if current == target {
		log.Println("✓ Schema is up to date, nothing to do")
		return
	}
	if current > target {
		log.Fatalf("Schema version %d is newer than this build supports (%d); upgrade docmill instead", current, target)
	}

	if *dryRun {
		log.Println("[DRY RUN] Would perform the following operations:")
		log.Printf("1. Apply migration steps %d through %d in one transaction", current+1, target)
		log.Printf("2. Record schema version %d", target)
		log.Println("Dry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
		return
	}

	if err := store.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Printf("✓ Migration completed successfully, schema is now at version %d", target)
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
