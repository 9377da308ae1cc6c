package main

import (
	"context"
	"flag"
	"log"
	"os"

	"tarot-backend/repository"

	"github.com/joho/godotenv"
)

func main() {
	reset := flag.Bool("reset", false, "drop existing tables first (development only)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file found, using environment variables: %v", err)
	}

	ctx := context.Background()
	pool, err := repository.OpenPostgres(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if *reset {
		for _, table := range []string{"readings", "preferences", "installations"} {
			if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
				log.Fatalf("Failed to drop %s: %v", table, err)
			}
		}
		log.Println("✓ Dropped existing tables")
	}

	for _, stmt := range repository.Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}
	log.Println("✓ Created installations, preferences and readings tables")

	for _, stmt := range repository.Indexes {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("Failed to create index: %v", err)
		}
	}
	log.Println("✓ Created indexes")

	var count int
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name IN ('installations', 'preferences', 'readings')
	`).Scan(&count)
	if err != nil {
		log.Fatalf("Failed to verify schema: %v", err)
	}
	log.Printf("✓ Schema ready (%d/3 tables)", count)
}
