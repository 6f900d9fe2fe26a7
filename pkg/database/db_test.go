package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("DATABASE_MAX_CONNS", "12")
	t.Setenv("DATABASE_TIMEZONE", "UTC")

	cfg := ConfigFromEnv()
	if cfg.DSN != "postgres://u:p@db:5432/x" || cfg.MaxConns != 12 || cfg.TimeZone != "UTC" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_MAX_CONNS", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.DSN != defaultDSN || cfg.MaxConns != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestSessionSettings_QuotesValues(t *testing.T) {
	t.Parallel()

	got := sessionSettings(Config{TimeZone: "Asia/Shanghai", ClientEncoding: "it's"})
	want := []string{"SET TIME ZONE 'Asia/Shanghai'", "SET client_encoding = 'it''s'"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if len(sessionSettings(Config{})) != 0 {
		t.Fatalf("expected no statements for empty config")
	}
}

func TestMigrationsArePaired(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("expected at least one migration")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
}

func TestMongoConfigFromEnv(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("MONGO_DATABASE", "hr")

	cfg := MongoConfigFromEnv()
	if cfg.URI != "mongodb://localhost:27017" || cfg.Database != "hr" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
