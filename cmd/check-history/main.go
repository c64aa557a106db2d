package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/kdimtricp/lostfound/internal/config"
	"github.com/kdimtricp/lostfound/internal/database"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "Path to the YAML config file")
	recent := flag.Int("recent", 10, "Number of recent lost objects to show")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Database.Type == "" {
		log.Fatal("No history database configured (set database.type or TRACKER_DB_TYPE)")
	}

	db, err := database.NewDB(database.Config{
		Type:       cfg.Database.Type,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SQLitePath: cfg.Database.SQLitePath,
	})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	repo := database.NewLostObjectRepo(db)
	ctx := context.Background()

	all, err := repo.List(ctx, database.ListFilter{})
	if err != nil {
		log.Fatal("Failed to list lost objects:", err)
	}

	fmt.Println("Lost Object History")
	fmt.Println("===================")
	fmt.Printf("Database: %s\n", cfg.Database.Type)
	fmt.Printf("Total lost transitions: %d\n", len(all))

	type counts struct{ pending, found int }
	byClass := make(map[string]*counts)
	sessions := make(map[string]struct{})
	for _, obj := range all {
		c, ok := byClass[obj.Name]
		if !ok {
			c = &counts{}
			byClass[obj.Name] = c
		}
		if obj.Reactivated == nil {
			c.pending++
		} else {
			c.found++
		}
		sessions[obj.SessionID] = struct{}{}
	}
	fmt.Printf("Sessions: %d\n\n", len(sessions))

	classes := make([]string, 0, len(byClass))
	for name := range byClass {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	fmt.Println("By class (still lost / found again):")
	for _, name := range classes {
		c := byClass[name]
		fmt.Printf("  %-16s %4d / %d\n", name, c.pending, c.found)
	}

	if *recent <= 0 {
		return
	}
	pending, err := repo.List(ctx, database.ListFilter{Pending: true, Limit: *recent})
	if err != nil {
		log.Fatal("Failed to list pending lost objects:", err)
	}
	fmt.Printf("\nMost recent still lost (%d):\n", len(pending))
	for _, obj := range pending {
		fmt.Printf("  %s lost at frame %d (%s), color %s\n",
			obj.IdentityID, obj.Frame, obj.LostAt.Format("Jan 2, 2006 15:04:05"), obj.Color)
		if obj.ImagePath != "" {
			fmt.Printf("    image: %s\n", obj.ImagePath)
		}
	}
}
