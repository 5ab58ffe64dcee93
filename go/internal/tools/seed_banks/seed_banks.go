package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizchest/quizchest/go/internal/dbconfig"
	"github.com/quizchest/quizchest/go/internal/game/content"
)

func main() {
	dir := "banks"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	// 1) Collect bank files
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read banks dir: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	_, err = pool.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS question_banks (
            ref TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            question_count INT NOT NULL,
            has_final BOOLEAN NOT NULL,
            payload JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ensure question_banks table: %v\n", err)
		os.Exit(1)
	}

	// 3) Validate, upsert and count
	var (
		total    int
		upserted int
		errs     int
	)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		total++
		ref := strings.TrimSuffix(name, ".yaml")

		bank, err := content.LoadBank(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading bank %s: %v\n", ref, err)
			errs++
			continue
		}

		payload, err := json.Marshal(bank)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error encoding bank %s: %v\n", ref, err)
			errs++
			continue
		}

		_, err = pool.Exec(context.Background(), `
            INSERT INTO question_banks (ref, name, question_count, has_final, payload, updated_at)
            VALUES ($1,$2,$3,$4,$5,now())
            ON CONFLICT (ref) DO UPDATE SET
                name = EXCLUDED.name,
                question_count = EXCLUDED.question_count,
                has_final = EXCLUDED.has_final,
                payload = EXCLUDED.payload,
                updated_at = now()
        `,
			ref, bank.Name, len(bank.Questions), bank.Final != nil, payload,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting bank %s: %v\n", ref, err)
			errs++
			continue
		}
		upserted++
	}

	// 4) Print summary
	fmt.Printf(
		"Bank seed complete: %d total, %d upserted, %d errors\n",
		total, upserted, errs,
	)
}
