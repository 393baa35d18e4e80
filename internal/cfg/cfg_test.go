package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          10,
		ShutdownBudgetSeconds: 30,
		APIPort:               8080,
		Store:                 StoreSQLite,
		SQLitePath:            "data/wxalerts.db",
		DBMaxConns:            4,
		FeedURL:               "https://api.weather.gov",
		UserAgent:             "wxalerts-test",
		FetchTimeoutSeconds:   15,
		PrefsFile:             "config/preferences.json",
		EventBuffer:           256,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 10 {
		t.Errorf("DrainSeconds = %d, want 10", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 30 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 30", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.Store != StoreSQLite {
		t.Errorf("Store = %q, want %q", c.Store, StoreSQLite)
	}
	if c.FeedURL != "https://api.weather.gov" {
		t.Errorf("FeedURL = %q", c.FeedURL)
	}
	if c.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", c.APIToken)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-http-port", "9090",
		"-store", "postgres",
		"-database-url", "postgres://localhost/wx",
		"-zone", "TXZ211",
		"-api-token", "s3cret",
		"-event-buffer", "32",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.Store != StorePostgres {
		t.Errorf("Store = %q, want postgres", c.Store)
	}
	if c.DatabaseURL != "postgres://localhost/wx" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.Zone != "TXZ211" {
		t.Errorf("Zone = %q, want TXZ211", c.Zone)
	}
	if c.APIToken != "s3cret" {
		t.Errorf("APIToken = %q", c.APIToken)
	}
	if c.EventBuffer != 32 {
		t.Errorf("EventBuffer = %d, want 32", c.EventBuffer)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	with := func(mut func(*Config)) Config {
		c := validBase()
		mut(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string
	}{
		{name: "base is valid", cfg: validBase()},
		{name: "memory store", cfg: with(func(c *Config) { c.Store = StoreMemory; c.SQLitePath = "" })},
		{name: "postgres store", cfg: with(func(c *Config) { c.Store = StorePostgres; c.DatabaseURL = "postgres://x/y" })},
		{
			name:      "postgres without url",
			cfg:       with(func(c *Config) { c.Store = StorePostgres }),
			wantErr:   true,
			errSubstr: []string{"DATABASE_URL"},
		},
		{
			name:      "postgres bad pool size",
			cfg:       with(func(c *Config) { c.Store = StorePostgres; c.DatabaseURL = "postgres://x/y"; c.DBMaxConns = 0 }),
			wantErr:   true,
			errSubstr: []string{"DB_MAX_CONNS"},
		},
		{
			name:      "sqlite without path",
			cfg:       with(func(c *Config) { c.SQLitePath = "" }),
			wantErr:   true,
			errSubstr: []string{"SQLITE_PATH"},
		},
		{
			name:      "unknown store",
			cfg:       with(func(c *Config) { c.Store = "redis" }),
			wantErr:   true,
			errSubstr: []string{"STORE"},
		},
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget not above drain",
			cfg:       with(func(c *Config) { c.DrainSeconds = 30; c.ShutdownBudgetSeconds = 30 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port out of range",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "feed url without scheme",
			cfg:       with(func(c *Config) { c.FeedURL = "api.weather.gov" }),
			wantErr:   true,
			errSubstr: []string{"FEED_URL"},
		},
		{
			name:      "empty user agent",
			cfg:       with(func(c *Config) { c.UserAgent = "" }),
			wantErr:   true,
			errSubstr: []string{"USER_AGENT"},
		},
		{
			name:      "fetch timeout too long",
			cfg:       with(func(c *Config) { c.FetchTimeoutSeconds = 121 }),
			wantErr:   true,
			errSubstr: []string{"FETCH_TIMEOUT_SECONDS"},
		},
		{
			name:      "event buffer zero",
			cfg:       with(func(c *Config) { c.EventBuffer = 0 }),
			wantErr:   true,
			errSubstr: []string{"EVENT_BUFFER"},
		},
		{
			name:      "all invalid",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "STORE", "FEED_URL", "USER_AGENT", "PREFS_FILE", "EVENT_BUFFER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	seeds := []struct {
		drain, budget, port, buffer int
		store                       string
	}{
		{10, 30, 8080, 256, StoreSQLite},
		{1, 2, 1, 1, StoreMemory},
		{299, 300, 65535, 10000, StoreSQLite},
		{0, 0, 0, 0, ""},
		{300, 300, 65535, 1, StoreMemory},
		{150, 100, 8080, 5, "redis"},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, StorePostgres},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.buffer, s.store)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, buffer int, store string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.EventBuffer = buffer
		c.Store = store
		err := c.Validate()

		allValid := drain >= 1 && drain <= 300 &&
			budget >= 1 && budget <= 300 && budget > drain &&
			port >= 1 && port <= 65535 &&
			buffer >= 1 && buffer <= 10000 &&
			(store == StoreSQLite || store == StoreMemory)

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
