package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"situation-room/config"
	"situation-room/internal/repository"
	"situation-room/pkg/database"
)

const usage = `
Situation Room - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Create or update every table and index
  status      Show database connection status and table sizes
  truncate    Truncate all tables (DANGEROUS)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
`

var tables = []string{"chat_rooms", "chat_room_participants", "proxy_token_mappings", "domain_entities"}

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	database.Connect(cfg)
	defer database.Close()

	switch command {
	case "up":
		runMigrationsUp()
	case "status":
		showStatus()
	case "truncate":
		runTruncate()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(database.DB); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus() {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range tables {
		if !database.TableExists(table) {
			log.Printf("❌ Table %-24s does not exist", table)
			continue
		}
		var count int64
		if err := database.DB.Table(table).Count(&count).Error; err != nil {
			log.Printf("⚠️  Error counting table %s: %v", table, err)
			continue
		}
		log.Printf("✅ Table %-24s exists (%d rows)", table, count)
	}
}

func runTruncate() {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	for _, table := range tables {
		if !database.TableExists(table) {
			continue
		}
		if err := database.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			log.Fatalf("❌ Truncate of %s failed: %v", table, err)
		}
	}

	log.Println("✅ All tables truncated!")
}
