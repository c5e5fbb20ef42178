package main

import (
	"log"
	"os"

	"gardener-chat-be/internal/model"
	"gardener-chat-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, false)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// gen_random_uuid() needs pgcrypto on postgres < 13.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warning: could not ensure pgcrypto: %v", err)
	}

	log.Println("Migrating transcript archive...")
	if err := db.AutoMigrate(&model.ChatMessage{}); err != nil {
		log.Fatal("Error: AutoMigrate failed:", err)
	}
	log.Println("Migration complete")
}
