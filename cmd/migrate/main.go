package main

import (
	"context"
	"log"
	"os"
	"time"

	"filings-rag-be/internal/repository/implementation"
	"filings-rag-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database
	db, err := database.Open(dsn, database.DefaultOptions())
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 3. Extension, tables and the HNSW index
	log.Println("Migrating filing_chunks and session_snapshots...")
	if err := implementation.NewFilingChunkRepository(db).Migrate(ctx); err != nil {
		log.Fatal("Error: Migration failed:", err)
	}

	log.Println("Migration completed")
}
