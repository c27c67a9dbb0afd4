package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/aihub/search-go/internal/config"
	"github.com/aihub/search-go/internal/database"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	var action = flag.String("action", "up", "Migration action: up, down, version, force, goto")
	var version = flag.Int("version", 0, "Target version for migration")
	flag.Parse()

	// 初始化配置
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := sql.Open("postgres", config.AppConfig.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	migrationManager, err := database.NewMigrationManager(db, "./migrations", logger)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	defer migrationManager.Close()

	switch *action {
	case "up":
		fmt.Println("Running migrations up...")
		if err := migrationManager.Up(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "down":
		fmt.Println("Rolling back last migration...")
		if err := migrationManager.Down(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("Rollback completed successfully")

	case "version":
		version, dirty, err := migrationManager.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		fmt.Printf("Current version: %d", version)
		if dirty {
			fmt.Printf(" (dirty)")
		}
		fmt.Println()

	case "force":
		if *version == 0 {
			log.Fatal("Version must be specified for force action")
		}
		if err := migrationManager.ForceVersion(uint(*version)); err != nil {
			log.Fatalf("Force version failed: %v", err)
		}
		fmt.Printf("Forced version to %d\n", *version)

	case "goto":
		if *version == 0 {
			log.Fatal("Version must be specified for goto action")
		}
		fmt.Printf("Migrating to version %d...\n", *version)
		if err := migrationManager.UpTo(uint(*version)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", *version, err)
		}
		fmt.Printf("Successfully migrated to version %d\n", *version)

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("Available actions: up, down, version, force, goto")
		os.Exit(1)
	}
}
