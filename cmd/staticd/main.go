package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/adapter"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/marmos91/staticd/pkg/server"
	"github.com/spf13/pflag"
)

var version = "1.0.0"

type options struct {
	configPath string
	address    string
	port       int
	logLevel   string
	initConfig bool
	force      bool
	version    bool

	flags *pflag.FlagSet
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}

	flags := pflag.NewFlagSet("staticd", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "Configuration file (httpd.conf format, or .yaml/.toml/.json)")
	flags.StringVarP(&opts.address, "address", "a", config.DefaultAddress, "Address to listen on")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "Port to listen on")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.BoolVar(&opts.initConfig, "init-config", false, "Write a default YAML configuration and exit")
	flags.BoolVar(&opts.force, "force", false, "Overwrite an existing file with --init-config")
	flags.BoolVarP(&opts.version, "version", "V", false, "Print version and exit")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	opts.flags = flags
	return opts, nil
}

// applyOverrides copies explicitly set flags over the loaded configuration.
func (o *options) applyOverrides(cfg *config.Config) {
	if o.flags.Changed("address") {
		cfg.Adapters.HTTP.Address = o.address
	}
	if o.flags.Changed("port") {
		cfg.Adapters.HTTP.Port = o.port
	}
	if o.flags.Changed("log-level") {
		cfg.Logging.Level = strings.ToUpper(o.logLevel)
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.version {
		fmt.Printf("staticd %s\n", version)
		return
	}

	if opts.initConfig {
		path := config.DefaultYAMLFile
		if opts.flags.Changed("config") {
			path = opts.configPath
		}
		written, err := config.InitConfig(path, opts.force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", written)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	opts.applyOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid command line: %w", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	logger.Info("staticd %s", version)
	logger.Info("Configuration loaded from %s", opts.configPath)
	logger.Debug("Log level: %s, format: %s, output: %s", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ===== Metrics =====
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// ===== Content store =====
	store, err := config.CreateContentStore(ctx, &cfg.Content, metricsResult.S3Metrics)
	if err != nil {
		return fmt.Errorf("failed to create content store: %w", err)
	}
	logger.Info("Content store: %s, document root: %s", cfg.Content.Type, cfg.Server.DocumentRoot)

	if cfg.Content.Type == "filesystem" {
		if info, err := os.Stat(cfg.Server.DocumentRoot); err != nil || !info.IsDir() {
			logger.Warn("Document root %s is not a readable directory; every request will fail", cfg.Server.DocumentRoot)
		}
	}

	// ===== Server and adapters =====
	sctx := adapter.NewServerContext(cfg.Server.DocumentRoot, store)
	srv := server.New(sctx, cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		_ = store.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = store.Close()
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Listening on %s:%d. Press Ctrl+C to stop.", cfg.Adapters.HTTP.Address, cfg.Adapters.HTTP.Port)

	select {
	case sig := <-sigChan:
		logger.Info("Received %v, initiating graceful shutdown...", sig)
		cancel()

		err = <-serverDone
	case err = <-serverDone:
	}

	if metricsResult.Server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsResult.Server.Stop(stopCtx)
		stopCancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
