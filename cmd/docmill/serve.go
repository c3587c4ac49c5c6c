package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docmill/docmill/pkg/api"
	"github.com/docmill/docmill/pkg/config"
	"github.com/docmill/docmill/pkg/convert"
	"github.com/docmill/docmill/pkg/engine"
	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/health"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/scheduler"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/workspace"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion service",
	Long: `Start the docmill conversion service: the REST API, the task
scheduler with its conversion workers, and the metrics collector.

Configuration comes from a YAML file when --config is given and from
built-in defaults otherwise. Object store credentials always come from
the environment (S3_ACCESS_KEY, S3_SECRET_KEY, S3_ENDPOINT, and the
UPLOAD_S3_* overrides for the artifact bucket).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	if err := log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		Dir:        cfg.LogDir,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}

	fmt.Println("Starting docmill...")
	fmt.Printf("  Listen Address: %s\n", cfg.ListenAddr)
	fmt.Printf("  Database: %s (%s)\n", cfg.DatabaseURL, cfg.DatabaseKind)
	fmt.Printf("  Workspace Directory: %s\n", cfg.WorkspaceBaseDir)
	fmt.Printf("  Conversion Workers: %d\n", cfg.MaxConcurrentTasks)
	fmt.Println()

	store, err := storage.NewSQLStore(cfg.DatabaseKind, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open task store: %v", err)
	}
	defer store.Close()
	fmt.Println("✓ Task store ready")

	spaces, err := workspace.NewManager(cfg.WorkspaceBaseDir, cfg.TempDir)
	if err != nil {
		return fmt.Errorf("failed to prepare workspaces: %v", err)
	}
	fmt.Println("✓ Workspaces ready")

	downloads, err := objectstore.NewS3Gateway(objectstore.DownloadCredentials())
	if err != nil {
		return fmt.Errorf("failed to connect to download object store: %v", err)
	}
	uploads, err := objectstore.NewS3Gateway(objectstore.UploadCredentials())
	if err != nil {
		return fmt.Errorf("failed to connect to upload object store: %v", err)
	}
	fmt.Println("✓ Object store gateways connected")

	renderer := engine.NewLibreOffice(cfg.LibreOfficePath, cfg.EngineTimeout())
	pdfAnalyzer, err := engine.NewAnalyzerCommand("pdf-analyzer", cfg.PDFAnalyzerCmd, cfg.EngineTimeout())
	if err != nil {
		return fmt.Errorf("failed to build pdf analyzer: %v", err)
	}
	ocrAnalyzer, err := engine.NewAnalyzerCommand("ocr-analyzer", cfg.OCRAnalyzerCmd, cfg.EngineTimeout())
	if err != nil {
		return fmt.Errorf("failed to build ocr analyzer: %v", err)
	}
	dispatcher := convert.NewDispatcher(renderer, pdfAnalyzer, ocrAnalyzer)

	fabric := queue.NewFabric(cfg.QueueCapacity)
	broker := events.NewBroker()
	broker.Start()
	stopEventLog := events.StartLogging(broker)

	collector := metrics.NewCollector(store, fabric, spaces)
	collector.Start()

	metrics.SetVersion(Version)
	monitor := health.NewMonitor(health.DefaultConfig())
	monitor.Register("database", health.NewStoreChecker(store))
	monitor.Register("object_store", health.NewObjectStoreChecker(uploads, uploads.Bucket()))
	monitor.Register("engine_renderer", health.NewExecChecker([]string{cfg.LibreOfficePath, "--version"}))
	monitor.Start()

	sched := scheduler.New(scheduler.Options{
		Config:       cfg,
		Store:        store,
		Fabric:       fabric,
		Workspaces:   spaces,
		Downloads:    downloads,
		Uploads:      uploads,
		UploadBucket: uploads.Bucket(),
		Dispatcher:   dispatcher,
		Broker:       broker,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %v", err)
	}
	fmt.Println("✓ Scheduler started")

	apiServer := api.NewServer(api.Options{
		Config:    cfg,
		Store:     store,
		Scheduler: sched,
		Fabric:    fabric,
		Artifacts: uploads,
		Broker:    broker,
		Checks: map[string]health.Checker{
			"database":     health.NewStoreChecker(store),
			"object_store": health.NewObjectStoreChecker(uploads, uploads.Bucket()),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("API server error: %v", err)
		}
	}()
	fmt.Printf("✓ API listening on %s\n", cfg.ListenAddr)

	fmt.Println()
	fmt.Println("Service is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or API server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	// Shutdown: stop taking requests, drain the pipeline, then the rest.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "API shutdown error: %v\n", err)
	}
	sched.Stop()
	monitor.Stop()
	collector.Stop()
	stopEventLog()
	broker.Stop()

	fmt.Println("✓ Shutdown complete")
	return nil
}
