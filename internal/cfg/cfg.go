package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Store backends selectable with -store.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the service flags. Values can also come from WXALERTS_*
// environment variables via go-core's cfg.FillFromEnv.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	Store                 string
	SQLitePath            string
	DatabaseURL           string
	DBMaxConns            int
	FeedURL               string
	UserAgent             string
	FetchTimeoutSeconds   int
	PrefsFile             string
	Zone                  string
	EventBuffer           int
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 10, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 30, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required for POST /api/v1/check and /reset (empty = open)")
	fs.StringVar(&c.Store, "store", StoreSQLite, "alert state backend: sqlite, postgres or memory")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "data/wxalerts.db", "SQLite database file for -store=sqlite")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for -store=postgres")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 4, "PostgreSQL pool size (1..100)")
	fs.StringVar(&c.FeedURL, "feed-url", "https://api.weather.gov", "base URL of the alerts feed")
	fs.StringVar(&c.UserAgent, "user-agent", "wxalerts/1.0 (github.com/linnemanlabs/wxalerts)", "User-Agent sent to the feed")
	fs.IntVar(&c.FetchTimeoutSeconds, "fetch-timeout-seconds", 15, "per-request feed timeout (1..120)")
	fs.StringVar(&c.PrefsFile, "prefs-file", "config/preferences.json", "user preferences file, reloaded on change")
	fs.StringVar(&c.Zone, "zone", "", "forecast zone used when the preferences file sets none")
	fs.IntVar(&c.EventBuffer, "event-buffer", 256, "effect events kept for the UI (1..10000)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for STORE=sqlite"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE=postgres"))
		}
		if c.DBMaxConns <= 0 || c.DBMaxConns > 100 {
			errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 1..100)", c.DBMaxConns))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be sqlite, postgres or memory)", c.Store))
	}

	if u, err := url.Parse(c.FeedURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid FEED_URL %q", c.FeedURL))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("USER_AGENT is required"))
	}
	if c.FetchTimeoutSeconds <= 0 || c.FetchTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid FETCH_TIMEOUT_SECONDS %d (must be 1..120)", c.FetchTimeoutSeconds))
	}
	if c.PrefsFile == "" {
		errs = append(errs, errors.New("PREFS_FILE is required"))
	}
	if c.EventBuffer <= 0 || c.EventBuffer > 10000 {
		errs = append(errs, fmt.Errorf("invalid EVENT_BUFFER %d (must be 1..10000)", c.EventBuffer))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
