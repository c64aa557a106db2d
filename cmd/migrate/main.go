package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/lostfound/internal/database"
	"github.com/kdimtricp/lostfound/internal/logger"
)

func main() {
	var (
		dbType   = flag.String("db", "postgres", "Database type (postgres or sqlite)")
		host     = flag.String("host", "localhost", "Database host")
		port     = flag.Int("port", 5432, "Database port")
		user     = flag.String("user", "lostfound", "Database user")
		password = flag.String("password", "", "Database password")
		dbName   = flag.String("name", "lostfound", "Database name")
		dbPath   = flag.String("path", "./lostfound.db", "SQLite database path")
		status   = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	// Build database config
	config := database.Config{
		Type:       *dbType,
		Host:       *host,
		Port:       *port,
		User:       *user,
		Password:   *password,
		Name:       *dbName,
		SQLitePath: *dbPath,
	}

	// Override with environment variables if set
	if env := os.Getenv("TRACKER_DB_TYPE"); env != "" {
		config.Type = env
	}
	if env := os.Getenv("TRACKER_DB_HOST"); env != "" {
		config.Host = env
	}
	if env := os.Getenv("TRACKER_DB_USER"); env != "" {
		config.User = env
	}
	if env := os.Getenv("TRACKER_DB_PASSWORD"); env != "" {
		config.Password = env
	}
	if env := os.Getenv("TRACKER_DB_NAME"); env != "" {
		config.Name = env
	}
	if env := os.Getenv("TRACKER_DB_PATH"); env != "" {
		config.SQLitePath = env
	}

	lg, err := logger.New("development")
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer lg.Sync()

	// Connect to database
	db, err := database.NewDB(config)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), config.Type, lg)

	if *status {
		if config.Type != "postgres" {
			fmt.Println("SQLite schemas are created on open; nothing to track.")
			return
		}
		if err := migrator.Initialize(); err != nil {
			log.Fatal("Failed to initialize migrator:", err)
		}

		applied, err := migrator.GetAppliedMigrations()
		if err != nil {
			log.Fatal("Failed to get applied migrations:", err)
		}

		migrations, err := database.LoadMigrations(database.Migrations)
		if err != nil {
			log.Fatal("Failed to load migrations:", err)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, m := range migrations {
			status := "pending"
			if applied[m.Version] {
				status = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, status)
		}
	} else {
		fmt.Println("Running embedded migrations...")
		if err := db.RunMigrations(lg); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
		fmt.Println("Migrations completed successfully!")
	}
}
