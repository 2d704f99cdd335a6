package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remibot/internal/config"
	"remibot/internal/cooldown"
	"remibot/internal/notifier"
	"remibot/internal/reminders"
	rtsup "remibot/internal/runtime/supervisor"
	"remibot/internal/storage"
	"remibot/internal/task/reload"
	kit "remibot/internal/transport"
	telegram "remibot/internal/transport/telegram/adapter"
	"remibot/internal/transport/telegram/router"
	logx "remibot/pkg/logx"
)

const defaultMaintenanceSpec = "17 4 * * *"

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter kit.Adapter

	registry *reload.Registry
	rem      *reminders.Service
	gate     *cooldown.Gate
	notif    *notifier.Service

	cron *cron.Cron

	cmdm    *router.CommandManager
	updates chan kit.Update

	driver    string
	startedAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies its config immediately. Bootstrap with Telegram
	// logging disabled, set the target, then Apply the real flag, so the
	// first Apply doesn't warn about a missing target.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		if chatID, err := strconv.ParseInt(gl, 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	// Storage: memory unless a sqlite section is configured.
	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", effectiveDriver(sc)))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))

	registry := reload.New(store, log)

	limits, err := mapReminderLimits(cfg)
	if err != nil {
		return nil, err
	}
	rem := reminders.NewService(registry, notif, limits, log)

	window, err := config.ParseDurationOrDefault("cooldown.window", cfg.Cooldown.Window, cooldown.DefaultWindow)
	if err != nil {
		return nil, err
	}
	gate := cooldown.NewGate(registry, window, log.With(logx.String("comp", "cooldown")))

	if err := registry.Register(rem.Codec()); err != nil {
		return nil, err
	}
	if err := registry.Register(cooldown.Codec{Log: log.With(logx.String("comp", "cooldown"))}); err != nil {
		return nil, err
	}

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		registry: registry,
		rem:      rem,
		gate:     gate,
		notif:    notif,
		cmdm:     cmdm,
		updates:  make(chan kit.Update, 256),
		driver:   effectiveDriver(sc),
	}
	cmdm.SetRegistry(a.commands())
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapReminderLimits(cfg); err != nil {
			return err
		}
		if cfg.Maintenance != nil {
			if tz := strings.TrimSpace(cfg.Maintenance.Timezone); tz != "" {
				if _, err := time.LoadLocation(tz); err != nil {
					return fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err)
				}
			}
			if spec := strings.TrimSpace(cfg.Maintenance.Spec); spec != "" {
				if _, err := cron.ParseStandard(spec); err != nil {
					return fmt.Errorf("maintenance.spec: %w", err)
				}
			}
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	// Restore every durable task BEFORE the dispatcher accepts commands,
	// so users can never race a half-restored state.
	if err := a.registry.Start(a.sup.Context()); err != nil {
		return err
	}
	restored, err := a.registry.ReplayAll(a.sup.Context())
	if err != nil {
		return fmt.Errorf("task replay: %w", err)
	}
	a.log.Info("deferred tasks restored", logx.Int("count", restored))

	if err := a.startMaintenance(a.cfgm.Get()); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			for _, s := range sections {
				if s == "storage" {
					a.log.Warn("storage config changed; restart required for changes to take effect")
					break
				}
			}

			// log target first so Apply doesn't warn about a missing target
			if gl := strings.TrimSpace(newCfg.Telegram.GroupLog); gl != "" {
				if chatID, err := strconv.ParseInt(gl, 10, 64); err == nil {
					a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
				}
			} else {
				a.logs.SetTelegramTarget(0, 0)
			}
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
				Telegram: logx.TelegramConfig{
					Enabled:    newCfg.Logging.Telegram.Enabled,
					ThreadID:   newCfg.Logging.Telegram.ThreadID,
					MinLevel:   newCfg.Logging.Telegram.MinLevel,
					RatePerSec: newCfg.Logging.Telegram.RatePerSec,
				},
			})

			a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

			if limits, err := mapReminderLimits(newCfg); err != nil {
				a.log.Warn("invalid reminder limits; keeping previous", logx.Any("err", err))
			} else {
				a.rem.SetLimits(limits)
			}

			// notifier tunables (live); enable/disable flips the pipeline
			prevEnabled := a.notif.Enabled()
			if ncfg, err := mapNotifierConfig(newCfg); err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Any("err", err))
			} else {
				a.notif.Apply(ncfg)
				if prevEnabled && !ncfg.Enabled {
					a.log.Info("notifier disabled via config")
					stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					a.notif.Stop(stopCtx)
					cancel()
				} else if !prevEnabled && ncfg.Enabled {
					a.log.Info("notifier enabled via config")
					a.notif.Start(ctx)
				}
			}

			for _, s := range sections {
				if s == "maintenance" {
					a.stopMaintenance()
					if err := a.startMaintenance(newCfg); err != nil {
						a.log.Warn("maintenance schedule rejected", logx.Any("err", err))
					}
					break
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) startMaintenance(cfg *config.Config) error {
	mc := cfg.Maintenance
	if mc == nil || !mc.Enabled {
		return nil
	}
	loc := time.Local
	if tz := strings.TrimSpace(mc.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("maintenance.timezone: %w", err)
		}
		loc = l
	}
	spec := strings.TrimSpace(mc.Spec)
	if spec == "" {
		spec = defaultMaintenanceSpec
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		mctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.store.Maintain(mctx); err != nil {
			a.log.Warn("storage maintenance failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance.spec: %w", err)
	}
	c.Start()
	a.cron = c
	a.log.Info("maintenance scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (a *App) stopMaintenance() {
	if a.cron == nil {
		return
	}
	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
	}
	a.cron = nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("maintenance", 2*time.Second, func(context.Context) error { a.stopMaintenance(); return nil })
	step("tasks", 2*time.Second, func(c context.Context) error { return a.registry.Stop(c) })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}
}

func effectiveDriver(sc storage.Config) string {
	if d := strings.ToLower(strings.TrimSpace(sc.Driver)); d != "" {
		return d
	}
	return "memory"
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	// Omitted section means enabled with defaults.
	if cfg == nil || cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	n := cfg.Notifier
	retryBase, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, nil
}

func mapReminderLimits(cfg *config.Config) (reminders.Limits, error) {
	if cfg == nil {
		return reminders.Limits{}, nil
	}
	maxSpan, err := config.ParseDurationField("reminders.max_span", cfg.Reminders.MaxSpan)
	if err != nil {
		return reminders.Limits{}, err
	}
	minSpan, err := config.ParseDurationField("reminders.min_span", cfg.Reminders.MinSpan)
	if err != nil {
		return reminders.Limits{}, err
	}
	return reminders.Limits{
		MaxPerUser: cfg.Reminders.MaxPerUser,
		MinSpan:    minSpan,
		MaxSpan:    maxSpan,
	}, nil
}
