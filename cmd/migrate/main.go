package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|version]\n", os.Args[0])
	}
	flag.Parse()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	if err := run(action, database.ConfigFromEnv().DSN, sugar.Infof); err != nil {
		sugar.Fatalf("migration %s failed: %v", action, err)
	}
	sugar.Infof("migration %s completed", action)
}

func run(action, dsn string, logf func(string, ...any)) error {
	if action == "up" {
		return database.RunMigrations(dsn)
	}

	m, err := database.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logf("no migration applied")
			return nil
		}
		if err != nil {
			return err
		}
		logf("version=%d dirty=%t", version, dirty)
		return nil
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}
