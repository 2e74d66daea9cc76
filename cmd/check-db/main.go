// Package main is a diagnostic tool for testing database connectivity and
// inspecting live vault data. It connects with the server's configuration,
// lists the books and the number of pending access requests, and prints a
// summary to stdout. The binary exits non-zero on any failure so it can gate
// deployments on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/config"
	"github.com/grendelpress/manuscript-vault/internal/db"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schemaVersion, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", schemaVersion, dirty)

	fmt.Println("\n=== BOOKS ===")
	books, err := repositories.NewBookRepository(database).List(ctx, nil)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, b := range books {
		status := "inactive"
		if b.IsActive {
			status = "active"
		}
		fmt.Printf("Book: %s (%s) slug=%s author=%s [%s]\n", b.Title, b.ID, b.Slug, b.AuthorID, status)
	}
	if len(books) == 0 {
		fmt.Println("No books found!")
	}

	pending, err := repositories.NewAccessRequestRepository(database).PendingCount(ctx, nil)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("\nPending access requests: %d\n", pending)
}
