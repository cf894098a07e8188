// Command dicomarchive operates a local archive: it imports Part 10 files,
// runs C-FIND style queries and performs the patient and study maintenance
// the network services do not expose.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomarchive/config"
	"github.com/caio-sobreiro/dicomarchive/filestore"
	"github.com/caio-sobreiro/dicomarchive/ingest"
	"github.com/caio-sobreiro/dicomarchive/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dicomarchive",
		Short:         "DICOM archive maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the archive YAML configuration")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(findCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(permitCmd())
	rootCmd.AddCommand(deleteCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is an opened archive.
type app struct {
	archive   *config.Archive
	store     *store.Store
	committer *filestore.Committer
	logger    *slog.Logger
}

func openApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	path, _ := cmd.Flags().GetString("config")
	archive, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	st, err := store.OpenWithConfig(archive.Database, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	committer := filestore.NewCommitter(archive.Storage, archive.Defaults().PathFormat,
		filestore.WithLogger(logger),
		filestore.WithDigest(archive.Defaults().Digest))
	return &app{archive: archive, store: st, committer: committer, logger: logger}, nil
}

func (a *app) pipeline() *ingest.Pipeline {
	return ingest.New(a.store, a.committer, a.archive, ingest.WithLogger(a.logger))
}

func (a *app) Close() error {
	return a.store.Close()
}
