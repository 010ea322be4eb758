// Command main runs the database seeder for the diary.
package main

import (
	"context"
	"flag"
	"log"

	"diary/internal/bootstrap"
	"diary/internal/config"
	"diary/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 5, "Number of demo users to create")
	numEntries := flag.Int("entries", 10, "Number of entries per demo user")
	randSeed := flag.Int64("seed", 0, "Seed for generated content (0 = random)")
	fixtures := flag.String("fixtures", "", "Load users and entries from a YAML fixture file instead of generating them")
	shouldClean := flag.Bool("clean", false, "Delete all users and entries before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StorageDriver == config.StorageMemory {
		log.Fatal("STORAGE_DRIVER=memory does not persist; seed a postgres or sqlite database instead")
	}
	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production database")
	}

	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	ctx := context.Background()
	if *shouldClean {
		if err := seed.Clean(ctx, rt.DB); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		log.Println("database cleaned")
	}

	var summary *seed.Summary
	if *fixtures != "" {
		f, err := seed.LoadFixtures(*fixtures)
		if err != nil {
			log.Fatalf("Failed to load fixtures: %v", err)
		}
		summary, err = seed.Apply(ctx, rt.Store, f, 0)
		if err != nil {
			log.Fatalf("Fixture seeding failed: %v", err)
		}
	} else {
		summary, err = seed.Demo(ctx, rt.Store, seed.Options{
			Users:          *numUsers,
			EntriesPerUser: *numEntries,
			Seed:           *randSeed,
		})
		if err != nil {
			log.Fatalf("Demo seeding failed: %v", err)
		}
		log.Printf("demo users share the password %q", seed.DefaultPassword)
	}

	for _, u := range summary.Users {
		log.Printf("user %d: %s", u.ID, u.Username)
	}
	log.Printf("seeded %d users and %d entries", len(summary.Users), summary.Entries)
}
