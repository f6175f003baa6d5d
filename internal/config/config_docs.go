package config

// Doc annotates one key of the generated config.default.toml.
type Doc struct {
	// Text is written as comment lines above the key or section header.
	Text string
	// Examples are written as commented-out assignments after the value.
	Examples []string
}

// Docs is keyed by dotted TOML path ("hooks.timeout_seconds"). Section
// entries ("hooks") annotate the table header. Every field of [Config]
// needs an entry; cmd/genconfig reads this map.
var Docs = map[string]Doc{
	"version": {Text: "Config schema version. Do not edit."},

	"log": {Text: "Logging configuration"},
	"log.level": {
		Text:     `Minimum log level. Options: "trace", "debug", "info", "warn", "error"`,
		Examples: []string{`level = "debug"`, `level = "trace"`},
	},
	"log.max_size_mb": {Text: "Maximum log file size in megabytes before rotation."},

	"hooks": {
		Text: "Local hooks. Commands run first, then scripts from hooks/sleep.d or\n" +
			"hooks/wake.d in lexical order. Each receives POWERHOOK_EVENT=sleep|wake.\n" +
			"The system waits for sleep hooks before suspending where the platform allows it.",
	},
	"hooks.timeout_seconds": {Text: "Seconds each command or script may run before it is killed."},
	"hooks.sleep_commands": {
		Text:     "Shell command lines run before sleep.",
		Examples: []string{`sleep_commands = ["playerctl pause"]`},
	},
	"hooks.wake_commands": {
		Text:     "Shell command lines run after wake.",
		Examples: []string{`wake_commands = ["systemctl --user restart syncthing"]`},
	},
	"hooks.sleep_scripts": {
		Text:     "Glob patterns selecting scripts in hooks/sleep.d. ** matches across directories.",
		Examples: []string{`sleep_scripts = ["*.sh"]`, `sleep_scripts = []`},
	},
	"hooks.wake_scripts": {Text: "Glob patterns selecting scripts in hooks/wake.d."},

	"webhook": {
		Text: "HTTP notifications. Each URL receives a JSON POST:\n" +
			`{"id": "<uuid>", "event": "sleep", "host": "<hostname>", "time": "<RFC 3339>"}`,
	},
	"webhook.urls":            {Examples: []string{`urls = ["https://example.com/hooks/power"]`}},
	"webhook.retry_max":       {Text: "Retries per URL after the first attempt."},
	"webhook.timeout_seconds": {Text: "Seconds each HTTP attempt may take."},

	"daemon":              {Text: "Daemon behavior"},
	"daemon.watch_config": {Text: "Reload the hook set when this file changes. Log settings need a restart."},
	"daemon.record_state": {Text: "Keep state.json updated with sleep and wake history (shown by `powerhook status`)."},
}
