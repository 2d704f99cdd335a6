package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remibot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the bot token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage (nil means memory-only)
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver = strings.TrimSpace(s.Driver)
		oBusy = strings.TrimSpace(s.BusyTimeout)
		oPathSet = strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver = strings.TrimSpace(s.Driver)
		nBusy = strings.TrimSpace(s.BusyTimeout)
		nPathSet = strings.TrimSpace(s.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Notifier (nil means runtime defaults)
	defN := &NotifierConfig{
		Enabled:       true,
		Workers:       2,
		QueueSize:     512,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
	}
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	// Reminders
	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Int("reminders.max_per_user", newCfg.Reminders.MaxPerUser),
			logx.String("reminders.max_span", strings.TrimSpace(newCfg.Reminders.MaxSpan)),
			logx.String("reminders.min_span", strings.TrimSpace(newCfg.Reminders.MinSpan)),
		)
	}

	// Cooldown
	if strings.TrimSpace(oldCfg.Cooldown.Window) != strings.TrimSpace(newCfg.Cooldown.Window) {
		changed = append(changed, "cooldown")
		attrs = append(attrs, logx.String("cooldown.window", strings.TrimSpace(newCfg.Cooldown.Window)))
	}

	// Maintenance
	oM, nM := oldCfg.Maintenance, newCfg.Maintenance
	if (oM == nil) != (nM == nil) || (oM != nil && nM != nil && *oM != *nM) {
		changed = append(changed, "maintenance")
		if nM != nil {
			attrs = append(attrs,
				logx.Bool("maintenance.enabled", nM.Enabled),
				logx.String("maintenance.spec", strings.TrimSpace(nM.Spec)),
			)
		} else {
			attrs = append(attrs, logx.Bool("maintenance.enabled", false))
		}
	}

	sort.Strings(changed)
	return changed, attrs
}
