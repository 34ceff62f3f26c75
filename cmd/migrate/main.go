package main

import (
	"flag"
	"fmt"
	"log"

	"sigflow/internal/config"
	"sigflow/internal/database"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "Configuration file path")
		up         = flag.Bool("up", false, "Apply all pending migrations")
		down       = flag.Bool("down", false, "Roll back all migrations")
		steps      = flag.Int("steps", 0, "Apply n migrations up (negative rolls back)")
		version    = flag.Bool("version", false, "Show the current migration version")
		force      = flag.Int("force", -1, "Force the migration version (repairs a dirty state)")
		help       = flag.Bool("help", false, "Show usage")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnvOverrides(config.NewEnvManager("", ""))

	db, err := database.NewConnection(&database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		Timeout:         cfg.Database.Timeout,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer migrator.Close()

	switch {
	case *up:
		runMigrations(migrator)
	case *down:
		rollbackMigrations(migrator)
	case *steps != 0:
		stepMigrations(migrator, *steps)
	case *version:
		showVersion(migrator)
	case *force >= 0:
		forceMigrationVersion(migrator, *force)
	default:
		runMigrations(migrator)
	}
}

func showHelp() {
	fmt.Println("sigflow database migration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config string")
	fmt.Println("        Configuration file path (default: configs/config.yaml)")
	fmt.Println("  -up")
	fmt.Println("        Apply all pending migrations (default action)")
	fmt.Println("  -down")
	fmt.Println("        Roll back all migrations")
	fmt.Println("  -steps int")
	fmt.Println("        Apply n migrations up, or roll back n when negative")
	fmt.Println("  -version")
	fmt.Println("        Show the current migration version")
	fmt.Println("  -force int")
	fmt.Println("        Force the migration version (repairs a dirty state)")
	fmt.Println("  -help")
	fmt.Println("        Show usage")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  migrate -up")
	fmt.Println("  migrate -steps -1")
	fmt.Println("  migrate -version")
	fmt.Println("  migrate -force 1")
	fmt.Println("  migrate -config configs/production.yaml -up")
}

func runMigrations(migrator *database.Migrator) {
	log.Println("Applying migrations...")

	if err := migrator.Up(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations applied")
}

func rollbackMigrations(migrator *database.Migrator) {
	log.Println("Rolling back all migrations...")

	if err := migrator.Down(); err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}

	log.Println("Rollback complete")
}

func stepMigrations(migrator *database.Migrator, n int) {
	log.Printf("Stepping migrations by %d...", n)

	if err := migrator.Steps(n); err != nil {
		log.Fatalf("Step failed: %v", err)
	}

	log.Println("Step complete")
}

func showVersion(migrator *database.Migrator) {
	version, err := migrator.Version()
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
}

func forceMigrationVersion(migrator *database.Migrator, version int) {
	log.Printf("Forcing migration version to %d", version)

	if err := migrator.Force(version); err != nil {
		log.Fatalf("Failed to force migration version: %v", err)
	}

	log.Println("Migration version forced")
}
