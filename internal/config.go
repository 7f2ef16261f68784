package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdimport/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Import ImportConfig      `yaml:"import"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Client ClientConfig      `yaml:"client"`
	State  StateConfig       `yaml:"state"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port           int   `yaml:"port"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxUploadBytes, validation.Min(int64(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ImportConfig holds ingestion runner settings.
type ImportConfig struct {
	// ScanRoot bounds every directory the scan endpoint may read.
	ScanRoot         string        `yaml:"scan_root"`
	DefaultBatchSize int           `yaml:"default_batch_size"`
	Retention        time.Duration `yaml:"retention"`
	ProgressThrottle time.Duration `yaml:"progress_throttle"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ScanRoot, validation.Required),
		validation.Field(&c.DefaultBatchSize, validation.Required, validation.Min(1), validation.Max(500)),
		validation.Field(&c.Retention, validation.Min(time.Duration(0))),
		validation.Field(&c.ProgressThrottle, validation.Min(time.Duration(0))),
	)
}

// InboxConfig configures the hot-folder watcher. An empty Path disables it.
type InboxConfig struct {
	Path             string            `yaml:"path"`
	Debounce         time.Duration     `yaml:"debounce"`
	Archive          string            `yaml:"archive"`
	Mode             models.ImportMode `yaml:"mode"`
	CreateCategories bool              `yaml:"create_categories"`
	CreateTags       bool              `yaml:"create_tags"`
	DefaultStatus    int               `yaml:"default_status"`
}

// Enabled reports whether the watcher should run.
func (c *InboxConfig) Enabled() bool {
	return c.Path != ""
}

// ImportConfig returns the policy used for inbox submissions.
func (c *InboxConfig) ImportConfig(batchSize int) models.ImportConfig {
	return models.ImportConfig{
		Mode:             c.Mode,
		CreateCategories: c.CreateCategories,
		CreateTags:       c.CreateTags,
		DefaultStatus:    c.DefaultStatus,
		BatchSize:        batchSize,
	}
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Mode, validation.Required,
			validation.In(models.ModeSkip, models.ModeOverwrite, models.ModeUpdate)),
		validation.Field(&c.DefaultStatus, validation.In(0, 1)),
	)
}

// ClientConfig configures the CLI's connection to a running server.
type ClientConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// StateConfig locates the CLI session state file. An empty Path keeps
// state in memory.
type StateConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:           8080,
				MaxUploadBytes: 50 << 20,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./mdimport.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Import: ImportConfig{
			ScanRoot:         ".",
			DefaultBatchSize: models.DefaultBatchSize,
			Retention:        time.Hour,
			ProgressThrottle: 250 * time.Millisecond,
		},
		Inbox: InboxConfig{
			Debounce:         500 * time.Millisecond,
			Archive:          ".imported",
			Mode:             models.ModeSkip,
			CreateCategories: true,
			CreateTags:       true,
			DefaultStatus:    1,
		},
		Client: ClientConfig{
			BaseURL:      "http://localhost:8080",
			Timeout:      30 * time.Second,
			PollInterval: time.Second,
		},
		State: StateConfig{
			Path: ".mdimport/state.yaml",
		},
	}
}
