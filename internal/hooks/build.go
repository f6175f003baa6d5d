package hooks

import (
	"log/slog"

	"tools.zach/dev/powerhook/internal/config"
	"tools.zach/dev/powerhook/internal/paths"
	"tools.zach/dev/powerhook/internal/power"
	"tools.zach/dev/powerhook/internal/state"
)

// Build assembles the hook set described by cfg: scripts first, then
// webhooks when URLs are configured, then the recorder when state recording
// is enabled and store is non-nil. Every notification gets a fresh event id.
func Build(cfg *config.Config, dir paths.DataDir, store *state.Store, log *slog.Logger) power.Hooks {
	if log == nil {
		log = slog.Default()
	}

	set := Multi{
		NewScripts(
			ScriptSet{Commands: cfg.Hooks.SleepCommands, Dir: dir.SleepHooks(), Patterns: cfg.Hooks.SleepScripts},
			ScriptSet{Commands: cfg.Hooks.WakeCommands, Dir: dir.WakeHooks(), Patterns: cfg.Hooks.WakeScripts},
			cfg.Hooks.Timeout(),
			log,
		),
	}
	if len(cfg.Webhook.URLs) > 0 {
		set = append(set, NewWebhook(WebhookOptions{
			URLs:     cfg.Webhook.URLs,
			RetryMax: cfg.Webhook.RetryMax,
			Timeout:  cfg.Webhook.Timeout(),
			Log:      log,
		}))
	}
	if cfg.Daemon.RecordState && store != nil {
		set = append(set, NewRecorder(store))
	}
	return Identified{Inner: set}
}
