package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheetpoll/sheetpoll/allowlist"
)

// Config captures all options required to run the harvester.
type Config struct {
	Protocol           string
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	MboxPath           string

	LedgerPath       string
	EmailDir         string
	AttachmentDir    string
	AllowlistPath    string
	HeaderFilterPath string

	WriteDuplicateAttachments bool
	DryRun                    bool
	LogLevel                  string
	LogDir                    string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("settings", "", "Optional settings file; explicitly set flags take precedence over it")
	flags.String("protocol", "pop3", "Mailbox protocol: pop3, imap or mbox")
	flags.String("host", "", "Mail server hostname")
	flags.Int("port", 995, "Mail server port")
	flags.String("username", "", "Mailbox username")
	flags.String("password", "", "Mailbox password (falls back to MAILBOX_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the mailbox connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("mailbox", "INBOX", "Mailbox folder (imap only)")
	flags.String("mbox", "", "Path to a local mbox archive (mbox protocol only)")
	flags.String("ledger", "processed_emails.json", "Path to the processed-email ledger file")
	flags.String("email-dir", "emails", "Output directory for raw message files")
	flags.String("attachment-dir", "attachments", "Output directory for extracted attachments")
	flags.String("allowlist", "whitelist.json", "Allow-list file with permitted senders and receivers")
	flags.String("header-filter", "header_filter.json", "File listing the header names to keep when projecting")
	flags.Bool("write-duplicate-attachments", true, "Write attachment bytes even when the payload was already seen under another message")
	flags.Bool("dry-run", false, "Run the pipeline without writing files or persisting the ledger")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (in addition to stdout)")
}

// LoadConfig merges flags and the optional settings file into a Config.
// Explicitly set flags win over file values, file values over flag defaults.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if settings := v.GetString("settings"); settings != "" {
		v.SetConfigFile(settings)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read settings file: %w", err)
		}
	}

	cfg := Config{
		Protocol:                  strings.ToLower(v.GetString("protocol")),
		Host:                      v.GetString("host"),
		Port:                      v.GetInt("port"),
		Username:                  v.GetString("username"),
		Password:                  v.GetString("password"),
		UseTLS:                    v.GetBool("use-tls"),
		InsecureSkipVerify:        v.GetBool("insecure-skip-verify"),
		Mailbox:                   v.GetString("mailbox"),
		MboxPath:                  v.GetString("mbox"),
		LedgerPath:                filepath.Clean(v.GetString("ledger")),
		EmailDir:                  v.GetString("email-dir"),
		AttachmentDir:             v.GetString("attachment-dir"),
		AllowlistPath:             v.GetString("allowlist"),
		HeaderFilterPath:          v.GetString("header-filter"),
		WriteDuplicateAttachments: v.GetBool("write-duplicate-attachments"),
		DryRun:                    v.GetBool("dry-run"),
		LogLevel:                  strings.ToLower(v.GetString("log-level")),
		LogDir:                    v.GetString("log-dir"),
	}

	if cfg.Password == "" {
		cfg.Password = os.Getenv("MAILBOX_PASS")
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch cfg.Protocol {
	case "pop3", "imap":
		if cfg.Host == "" {
			return fmt.Errorf("--host is required for protocol %s", cfg.Protocol)
		}
		if cfg.Username == "" {
			return fmt.Errorf("--username is required for protocol %s", cfg.Protocol)
		}
		if cfg.Password == "" {
			return fmt.Errorf("mailbox password must be provided via --password or MAILBOX_PASS env var")
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			return fmt.Errorf("--port must be between 1 and 65535")
		}
	case "mbox":
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required for protocol mbox")
		}
	default:
		return fmt.Errorf("invalid --protocol: %s", cfg.Protocol)
	}

	if cfg.EmailDir == "" || cfg.AttachmentDir == "" {
		return fmt.Errorf("output directories must not be empty")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// LoadAllowList reads the allow-list file. A missing or unreadable file
// degrades to an empty allow-list (which matches nothing) with a warning.
func LoadAllowList(path string, logger *slog.Logger) allowlist.AllowList {
	v := viper.New()
	v.SetConfigFile(path)

	var list allowlist.AllowList
	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("allow-list unreadable, using empty list", "path", path, "err", err)
		}
		return list
	}
	if err := v.Unmarshal(&list); err != nil {
		if logger != nil {
			logger.Warn("allow-list malformed, using empty list", "path", path, "err", err)
		}
		return allowlist.AllowList{}
	}
	return list
}

// LoadHeaderFilter reads the header-filter file
// (`{"headers_to_filter": [...]}`). A missing or unreadable file degrades to
// an empty allow-set with a warning.
func LoadHeaderFilter(path string, logger *slog.Logger) []string {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("header-filter unreadable, keeping only Return-Path", "path", path, "err", err)
		}
		return nil
	}
	return v.GetStringSlice("headers_to_filter")
}
