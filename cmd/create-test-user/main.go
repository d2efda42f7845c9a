package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"casecounsel-backend/auth"
	"casecounsel-backend/config"
	"casecounsel-backend/models"
	"casecounsel-backend/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	email := flag.String("email", "test@example.com", "user email")
	name := flag.String("name", "Test User", "display name")
	rotate := flag.Bool("rotate", false, "issue a new token for an existing user")
	flag.Parse()

	if !config.LoadDotEnv() {
		log.Printf("Warning: No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)

	existing, err := users.GetByEmail(ctx, *email)
	switch {
	case err == nil && !*rotate:
		log.Printf("User with email %s already exists (ID: %s). Use -rotate to issue a new token.", *email, existing.ID)
		return
	case err == nil:
		token, hash, err := auth.IssueToken(existing.ID)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		if err := users.UpdateAPITokenHash(ctx, existing.ID, hash); err != nil {
			log.Fatalf("Failed to store token: %v", err)
		}
		printUser(existing, token)
		return
	case !errors.Is(err, repository.ErrUserNotFound):
		log.Fatalf("Failed to look up user: %v", err)
	}

	user := &models.User{ID: uuid.NewString(), Email: *email, Name: *name}
	token, hash, err := auth.IssueToken(user.ID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	user.APITokenHash = hash

	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	printUser(user, token)
}

func printUser(user *models.User, token string) {
	fmt.Printf("✅ Test user ready!\n")
	fmt.Printf("   ID: %s\n", user.ID)
	fmt.Printf("   Email: %s\n", user.Email)
	fmt.Printf("   Name: %s\n", user.Name)
	fmt.Printf("   API token: %s\n", token)
	fmt.Printf("   Use: Authorization: Bearer %s\n", token)
}
