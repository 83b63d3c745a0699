// Package config parses and validates the orchestrator's CLI surface
// (spec.md §6), binding github.com/spf13/pflag flags through
// github.com/spf13/viper for optional environment-variable overrides, the
// same stack the teacher's server.InitConfig uses — scaled down from its
// multi-cluster, multi-file TOML merging to this spec's single flag set.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every value spec.md §6 names.
type Config struct {
	DBUser         string
	DBPass         string
	ProxyAdminUser string
	ProxyAdminPass string
	ProxyHost      string
	ProxyPort      int
	NotifyTo       []string

	LogFile            string
	IgnoreStartWarning bool
	ReportHourUTC      int
	ConsoleStatus      bool
	AdminAddr          string

	BrevoAPIKey string
	SenderEmail string
}

// Parse builds a Config from the given CLI arguments (normally
// os.Args[1:]), applying environment overrides bound under the
// REPL_ORCHESTRATOR_ prefix, and validates required flags and the
// report-hour range. A non-nil error here is the "fatal configuration
// error" exit path of spec.md §6.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("repl-orchestrator", pflag.ContinueOnError)

	fs.String("db-user", "", "database user (required)")
	fs.String("db-pass", "", "database password (required)")
	fs.String("proxy-admin-user", "", "proxy admin user (required)")
	fs.String("proxy-admin-pass", "", "proxy admin password (required)")
	fs.String("proxy-host", "", "proxy admin host (required)")
	fs.Int("proxy-port", 6032, "proxy admin port")
	fs.StringSlice("notify-to", nil, "notification recipient emails (required)")
	fs.String("log-file", "./orchestrator.log", "log file path")
	fs.Bool("ignore-start-warning", false, "skip interactive confirmation on a dangerous start")
	fs.Int("report-hour", 12, "UTC hour (0-23) to send the daily report")
	fs.Bool("console-status", isStdoutTTY(), "print a colorized per-node status line to stderr each tick")
	fs.String("admin-addr", "", "address for the HTTP admin surface: status, heartbeat and confirm-start (SPEC_FULL.md §5); empty disables it")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("REPL_ORCHESTRATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBUser:             v.GetString("db-user"),
		DBPass:             v.GetString("db-pass"),
		ProxyAdminUser:     v.GetString("proxy-admin-user"),
		ProxyAdminPass:     v.GetString("proxy-admin-pass"),
		ProxyHost:          v.GetString("proxy-host"),
		ProxyPort:          v.GetInt("proxy-port"),
		NotifyTo:           v.GetStringSlice("notify-to"),
		LogFile:            v.GetString("log-file"),
		IgnoreStartWarning: v.GetBool("ignore-start-warning"),
		ReportHourUTC:      v.GetInt("report-hour"),
		ConsoleStatus:      v.GetBool("console-status"),
		AdminAddr:          v.GetString("admin-addr"),
		BrevoAPIKey:        os.Getenv("BREVO_API_KEY"),
		SenderEmail:        os.Getenv("SENDER_EMAIL"),
	}

	return cfg, cfg.Validate()
}

// isStdoutTTY reports whether stdout looks like an interactive terminal,
// the default for --console-status (SPEC_FULL.md §4.13: "default on when
// stdout is a TTY, matching the teacher's termbox-gated !repman.Conf.Daemon
// check"). A character-device mode is the plain, dependency-free
// equivalent of that check for a non-full-screen status line.
func isStdoutTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Validate checks the required flags and bounds spec.md §6 specifies.
func (c Config) Validate() error {
	var missing []string
	if c.DBUser == "" {
		missing = append(missing, "--db-user")
	}
	if c.DBPass == "" {
		missing = append(missing, "--db-pass")
	}
	if c.ProxyAdminUser == "" {
		missing = append(missing, "--proxy-admin-user")
	}
	if c.ProxyAdminPass == "" {
		missing = append(missing, "--proxy-admin-pass")
	}
	if c.ProxyHost == "" {
		missing = append(missing, "--proxy-host")
	}
	if len(c.NotifyTo) == 0 {
		missing = append(missing, "--notify-to")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if c.ReportHourUTC < 0 || c.ReportHourUTC > 23 {
		return fmt.Errorf("--report-hour must be 0-23, got %d", c.ReportHourUTC)
	}
	return nil
}
