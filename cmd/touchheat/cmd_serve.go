package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/touchheat/touchheat/internal/database"
	"github.com/touchheat/touchheat/internal/server"
)

var (
	serveAddr string
	serveDB   string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collection and insights server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loader.Config()
	setupLogging(cfg)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	dbPath := cfg.DatabasePath
	if serveDB != "" {
		dbPath = serveDB
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if configPath != "" {
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	return server.NewServer(db, loader, addr).Start()
}
