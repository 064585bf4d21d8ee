package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config adds watchtower-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	FeedEndpoint          string
	FeedTenantID          string
	PollIntervalSeconds   int
	DefaultProject        string
	Timezone              string
	PlaybookFile          string
	DatabaseURL           string
	SlackWebhookURL       string
	EscalateSeverity      string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.FeedEndpoint, "feed-endpoint", "", "base URL of the alert and progress hierarchy feed")
	fs.StringVar(&c.FeedTenantID, "feed-tenant-id", "", "tenant ID sent to the feed for multi-tenant setups")
	fs.IntVar(&c.PollIntervalSeconds, "poll-interval-seconds", 30, "seconds between alert polls (5..3600)")
	fs.StringVar(&c.DefaultProject, "default-project", "", "project code selected at startup (empty = portfolio)")
	fs.StringVar(&c.Timezone, "timezone", "UTC", "IANA time zone for hourly and daily alert buckets")
	fs.StringVar(&c.PlaybookFile, "playbook-file", "", "TOML playbook library (empty = built-in playbooks)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory historian)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for tower escalations")
	fs.StringVar(&c.EscalateSeverity, "escalate-severity", "critical", "lowest tower severity escalated to Slack (critical|warn)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.FeedEndpoint == "" {
		errs = append(errs, errors.New("FEED_ENDPOINT is required"))
	}

	if c.PollIntervalSeconds < 5 || c.PollIntervalSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %d (must be 5..3600)", c.PollIntervalSeconds))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err))
	}

	switch c.EscalateSeverity {
	case "critical", "warn":
	default:
		errs = append(errs, fmt.Errorf("invalid ESCALATE_SEVERITY %q (must be critical or warn)", c.EscalateSeverity))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
