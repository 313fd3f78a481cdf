package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetpoll/sheetpoll/config"
	"github.com/sheetpoll/sheetpoll/imap"
	"github.com/sheetpoll/sheetpoll/ledger"
	"github.com/sheetpoll/sheetpoll/mboxfile"
	"github.com/sheetpoll/sheetpoll/pipeline"
	"github.com/sheetpoll/sheetpoll/pop3"
	"github.com/sheetpoll/sheetpoll/transport"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheetpoll",
		Short: "Poll a mailbox and harvest spreadsheet attachments into a hash-keyed ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg.LogLevel, cfg.LogDir)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting sheetpoll", "protocol", cfg.Protocol, "ledger", cfg.LedgerPath, "dryRun", cfg.DryRun)

			return run(cfg, logger)
		},
	}

	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(newSetStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	store, err := ledger.NewStore(cfg.LedgerPath, logger)
	if err != nil {
		return fmt.Errorf("ledger.NewStore: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		AllowList:                 config.LoadAllowList(cfg.AllowlistPath, logger),
		HeaderFilter:              config.LoadHeaderFilter(cfg.HeaderFilterPath, logger),
		Store:                     store,
		EmailDir:                  cfg.EmailDir,
		AttachmentDir:             cfg.AttachmentDir,
		WriteDuplicateAttachments: cfg.WriteDuplicateAttachments,
		DryRun:                    cfg.DryRun,
		LogLevel:                  cfg.LogLevel,
	}, logger)
	if err != nil {
		return fmt.Errorf("pipeline.New: %w", err)
	}

	session, err := openSession(cfg)
	if err != nil {
		return err
	}

	_, err = p.Run(session)
	return err
}

func openSession(cfg config.Config) (transport.Transport, error) {
	switch cfg.Protocol {
	case "pop3":
		return pop3.Connect(pop3.Options{
			Host:               cfg.Host,
			Port:               cfg.Port,
			Username:           cfg.Username,
			Password:           cfg.Password,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			DialTimeout:        30 * time.Second,
		})
	case "imap":
		return imap.Connect(imap.Options{
			Host:               cfg.Host,
			Port:               cfg.Port,
			Username:           cfg.Username,
			Password:           cfg.Password,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.Mailbox,
		})
	case "mbox":
		return mboxfile.Open(cfg.MboxPath)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
}

func setupLogger(logLevel, logDir string) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("sheetpoll-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
