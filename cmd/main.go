package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/takak2166/expo2joplin/internal/config"
	"github.com/takak2166/expo2joplin/internal/joplin"
	"github.com/takak2166/expo2joplin/internal/logger"
	"github.com/takak2166/expo2joplin/internal/metrics"
	"github.com/takak2166/expo2joplin/internal/parser"
	"github.com/takak2166/expo2joplin/internal/syncer"
)

var (
	dumpFile  string
	hostsFile string
)

var rootCmd = &cobra.Command{
	Use:   "expo2joplin",
	Short: "Sync expo host dumps into Joplin notebooks",
	Long: `expo2joplin reads an expo dump and a host allow-list and mirrors every
allowed host into Joplin as <root>/<segment>/<host>/00-Overview,
together with a TODO checklist notebook per host.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&dumpFile, "dump", "hosts.json", "filename for dump")
	rootCmd.Flags().StringVar(&hostsFile, "hosts", "hosts.txt", "filename for hosts")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load .env file
	if err := config.LoadDotenv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting sync", map[string]interface{}{
		"dump":    dumpFile,
		"hosts":   hostsFile,
		"api_url": cfg.APIURL,
	})

	checklist, err := config.LoadChecklist(cfg.TodoFile)
	if err != nil {
		return err
	}

	p := parser.New()
	if err := p.ParseHostsFile(hostsFile); err != nil {
		return fmt.Errorf("failed to load hosts file: %w", err)
	}
	if err := p.ParseFile(dumpFile); err != nil {
		return fmt.Errorf("failed to load dump file: %w", err)
	}

	m := metrics.New()
	client, err := joplin.New(cfg.APIURL, cfg.Token,
		joplin.WithRequestDelay(cfg.RequestDelay),
		joplin.WithObserver(m),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Joplin client: %w", err)
	}

	s := syncer.New(client, syncer.Options{
		RootFolder: cfg.RootFolder,
		SyncTodos:  cfg.SyncTodos,
		Checklist:  checklist,
	}, m)

	start := time.Now()
	report, err := s.Run(ctx, p.GetRecords(), p)
	m.ObserveRun(start, time.Now())
	writeMetrics(m, cfg.MetricsFile)
	if err != nil {
		return err
	}

	logger.Info("Sync completed", map[string]interface{}{
		"run_id":        report.RunID,
		"total_hosts":   report.Total,
		"allowed_hosts": len(p.GetHosts()),
		"skipped_count": report.Skipped,
		"success_count": report.Synced,
		"failure_count": report.Failed(),
	})

	return nil
}

func writeMetrics(m *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Error("Failed to write metrics file", err, map[string]interface{}{
			"filepath": path,
		})
	}
}
