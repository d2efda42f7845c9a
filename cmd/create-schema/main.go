package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"casecounsel-backend/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

var tables = []struct {
	name string
	sql  string
}{
	{
		name: "users",
		sql: `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    name VARCHAR(255) NOT NULL DEFAULT '',
    firm_name VARCHAR(255),
    -- bcrypt hash of the API token secret
    api_token_hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		name: "cases",
		sql: `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    creator_uid TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    client TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'open'
        CHECK (status IN ('open', 'active', 'closed', 'archived')),
    legal_side VARCHAR(20) NOT NULL DEFAULT 'GENERAL'
        CHECK (legal_side IN ('PROSECUTION', 'DEFENSE', 'CORPORATE', 'FINANCIAL', 'CIVIL', 'GENERAL')),
    description TEXT NOT NULL DEFAULT '',
    jurisdiction JSONB NOT NULL DEFAULT '{}'::jsonb,

    -- append-only logs, rewritten under SELECT ... FOR UPDATE
    documents JSONB NOT NULL DEFAULT '[]'::jsonb,
    research_history JSONB NOT NULL DEFAULT '[]'::jsonb,
    messages JSONB NOT NULL DEFAULT '[]'::jsonb,

    global_context_summary TEXT,
    last_summarized_at TIMESTAMPTZ,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		name: "case_files",
		sql: `
CREATE TABLE IF NOT EXISTS case_files (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    mime_type VARCHAR(255) NOT NULL,
    size BIGINT NOT NULL,
    sha256 CHAR(64) NOT NULL,
    storage_path TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	},
	{
		name: "summary_jobs",
		sql: `
CREATE TABLE IF NOT EXISTS summary_jobs (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    requester_uid TEXT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'in_progress', 'completed', 'skipped', 'failed')),
    input_chars INTEGER NOT NULL DEFAULT 0,
    summary_chars INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);`,
	},
}

var indexes = []struct {
	name string
	sql  string
}{
	{
		name: "Cases by creator",
		sql:  "CREATE INDEX IF NOT EXISTS idx_cases_creator ON cases(creator_uid, created_at DESC);",
	},
	{
		name: "Files by case",
		sql:  "CREATE INDEX IF NOT EXISTS idx_case_files_case ON case_files(case_id);",
	},
	{
		name: "Latest summary job per case",
		sql:  "CREATE INDEX IF NOT EXISTS idx_summary_jobs_case ON summary_jobs(case_id, created_at DESC);",
	},
}

func main() {
	reset := flag.Bool("reset", false, "drop existing tables first (development only)")
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

	if *reset {
		_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS summary_jobs, case_files, cases, users CASCADE")
		if err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✓ Dropped existing tables")
	}

	for _, t := range tables {
		if _, err := pool.Exec(ctx, t.sql); err != nil {
			log.Fatalf("Failed to create %s table: %v", t.name, err)
		}
		log.Printf("✓ Created table: %s", t.name)
	}

	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx.sql); err != nil {
			log.Printf("Warning: Failed to create index %s: %v", idx.name, err)
		} else {
			log.Printf("✓ Created index: %s", idx.name)
		}
	}

	fmt.Println("\n✅ Database schema created successfully!")
	fmt.Printf("   Tables: %d\n", len(tables))
	fmt.Printf("   Indexes: %d\n", len(indexes))
}
