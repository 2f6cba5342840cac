// Command migrate manages the clinicore database schema: applies or
// rolls back migrations, loads seed data (baseline roles) and checks
// the seeded roles are in place.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicore.org/internal/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up      apply pending migrations
  down    roll back the most recent migration
  seed    load seed files, then verify baseline roles
  verify  check the baseline roles (admin, clinician, staff) exist
  status  list applied migrations`

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("CLINICORE_PG_DSN"), "PostgreSQL DSN (defaults to CLINICORE_PG_DSN)")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "directory of NNNN_name.up.sql / .down.sql files")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "directory of seed .sql files")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("no DSN: pass -dsn or set CLINICORE_PG_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		if err = mgr.Seed(ctx); err == nil {
			err = mgr.VerifySeedRoles(ctx)
		}
	case "verify":
		err = mgr.VerifySeedRoles(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}
