// Command staticd-import copies a local directory tree into the content
// store named by a staticd configuration, under its document root.
//
// Usage:
//
//	staticd-import -c staticd.yaml --source ./public
//
// Files are keyed by document_root + "/" + their slash-separated path
// relative to the source directory, which is exactly the lookup path the
// server resolves for the corresponding request target.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("staticd-import", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", config.DefaultYAMLFile, "Configuration file naming the target content store")
	source := flags.StringP("source", "s", "", "Directory to import (may also be given as the first argument)")
	dryRun := flags.Bool("dry-run", false, "List the files that would be imported without writing them")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if *source == "" && flags.NArg() > 0 {
		*source = flags.Arg(0)
	}
	if *source == "" {
		fmt.Fprintln(os.Stderr, "Error: --source is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *source, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, source string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("cannot read source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", source)
	}

	store, err := config.CreateWritableContentStore(ctx, &cfg.Content, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing content store: %v", err)
		}
	}()

	var (
		files int
		total uint64
	)

	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		name := path.Join(cfg.Server.DocumentRoot, filepath.ToSlash(rel))

		if dryRun {
			fmt.Println(name)
			files++
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := store.Put(ctx, name, data); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}

		logger.Debug("Imported %s (%s)", name, humanize.Bytes(uint64(len(data))))
		files++
		total += uint64(len(data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("import aborted after %d file(s): %w", files, err)
	}

	if dryRun {
		fmt.Printf("%d file(s) would be imported into the %s store\n", files, cfg.Content.Type)
		return nil
	}

	fmt.Printf("Imported %d file(s), %s into the %s store under %s\n",
		files, humanize.Bytes(total), cfg.Content.Type, cfg.Server.DocumentRoot)
	return nil
}
