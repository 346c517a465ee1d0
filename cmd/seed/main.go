// seed creates or repairs the initial administrator account. Run after migrations.
// Idempotent: an existing account keeps its id and other roles; ADMIN is granted and the
// password hash is replaced only when SEED_ADMIN_PASSWORD no longer verifies or is stale.
package main

import (
	"context"
	"log"
	"time"

	"digicheese/backend/internal/config"
	"digicheese/backend/internal/db"
	"digicheese/backend/internal/security"
	"digicheese/backend/internal/user/repository"
	"digicheese/backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if cfg.SeedAdminPassword == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is not set")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	hasher, err := security.NewHasher(security.Argon2Params{
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		KeyLength:   cfg.Argon2KeyLength,
	})
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := service.NewUserService(repository.NewPostgresRepository(conn), hasher)
	created, err := users.EnsureAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword)
	if err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if created {
		log.Printf("Seed completed: created admin %q.", cfg.SeedAdminUsername)
		return
	}
	log.Printf("Seed already applied: admin %q exists and is up to date.", cfg.SeedAdminUsername)
}
