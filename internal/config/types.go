package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage backs the durable task records. If omitted, tasks live in
	// memory only and do not survive restarts.
	Storage *StorageConfig `json:"storage,omitempty"`

	Notifier    *NotifierConfig    `json:"notifier,omitempty"`
	Reminders   ReminderConfig     `json:"reminders"`
	Cooldown    CooldownConfig     `json:"cooldown"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer for deferred tasks.
//
// Example:
//
//	storage:
//	  driver: sqlite
//	  path: ./remibot.db
type StorageConfig struct {
	Driver      string `json:"driver"` // "sqlite" or "memory"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async outbound message pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// ReminderConfig bounds per-user reminder usage.
//
// Defaults (when fields are omitted/zero):
//   - max_per_user: 50
//   - max_span: "8760h" (one year)
//   - min_span: "1s"
type ReminderConfig struct {
	MaxPerUser int `json:"max_per_user,omitempty"`
	// MaxSpan / MinSpan are Go duration strings bounding how far out a
	// reminder may be scheduled.
	MaxSpan string `json:"max_span,omitempty"`
	MinSpan string `json:"min_span,omitempty"`
}

// CooldownConfig controls the persistent per-user cooldown gate.
type CooldownConfig struct {
	// Window is a Go duration string; zero/omitted means the built-in
	// default of 5m.
	Window string `json:"window,omitempty"`
}

// MaintenanceConfig controls the daily storage sweep.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression (standard 5-field). Default "17 4 * * *".
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Validate checks invariants that must hold before a config is committed.
// It is also installed as the hot-reload validator, so a bad edit never
// replaces a good running config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if c.Storage != nil {
		switch strings.TrimSpace(strings.ToLower(c.Storage.Driver)) {
		case "", "sqlite", "memory":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			return errors.New("notifier: counts must be >= 0")
		}
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			return err
		}
	}
	if c.Reminders.MaxPerUser < 0 {
		return errors.New("reminders.max_per_user must be >= 0")
	}
	if _, err := ParseDurationField("reminders.max_span", c.Reminders.MaxSpan); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminders.min_span", c.Reminders.MinSpan); err != nil {
		return err
	}
	if _, err := ParseDurationField("cooldown.window", c.Cooldown.Window); err != nil {
		return err
	}
	return nil
}
