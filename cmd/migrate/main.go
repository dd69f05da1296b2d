// migrate applies the embedded schema migrations: go run ./cmd/migrate [-direction up|down] [-steps n] [-version].
package main

import (
	"flag"
	"fmt"
	"os"

	"tenant-identity/backend/internal/config"
	"tenant-identity/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply at most this many migrations (0 = all)")
	version := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("config", err)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *version {
		st, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fail("version", err)
		}
		switch {
		case st.Empty:
			fmt.Println("no migrations applied")
		case st.Dirty:
			fmt.Printf("version %d (dirty)\n", st.Version)
			os.Exit(1)
		default:
			fmt.Printf("version %d\n", st.Version)
		}
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction, *steps); err != nil {
		fail("migrate", err)
	}
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
