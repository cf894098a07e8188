package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/ingest"
)

type importStats struct {
	stored, duplicates, ignored, failed atomic.Int64
	bytes                               atomic.Int64
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import PATH...",
		Short: "Import Part 10 files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			callingAET, _ := cmd.Flags().GetString("calling-aet")
			calledAET, _ := cmd.Flags().GetString("called-aet")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if calledAET == "" {
				calledAET = a.archive.AETitle
			}

			files, err := collectFiles(args)
			if err != nil {
				return err
			}

			imp := &importer{app: a, pipeline: a.pipeline(), callingAET: callingAET, calledAET: calledAET}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for _, path := range files {
				g.Go(func() error {
					return imp.importFile(ctx, path)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			a.logger.InfoContext(cmd.Context(), "Import finished",
				"files", len(files),
				"stored", imp.stats.stored.Load(),
				"duplicates_stored", imp.stats.duplicates.Load(),
				"duplicates_ignored", imp.stats.ignored.Load(),
				"failed", imp.stats.failed.Load(),
				"size", humanize.Bytes(uint64(imp.stats.bytes.Load())))
			if n := imp.stats.failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d files failed to import", n, len(files))
			}
			return nil
		},
	}
	cmd.Flags().IntP("workers", "w", 4, "Files imported concurrently")
	cmd.Flags().String("calling-aet", "IMPORT", "Source AE title recorded for imported objects")
	cmd.Flags().String("called-aet", "", "AE whose settings apply (default: the archive AE title)")
	return cmd
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

type importer struct {
	app        *app
	pipeline   *ingest.Pipeline
	callingAET string
	calledAET  string
	stats      importStats
}

// importFile files one object. Per-file failures are counted and logged;
// only cancellation stops the import.
func (imp *importer) importFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := imp.ingest(ctx, path)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	imp.stats.failed.Add(1)
	imp.app.logger.WarnContext(ctx, "Failed to import file", "path", path, "error", err)
	return nil
}

func (imp *importer) ingest(ctx context.Context, path string) error {
	ds, ts, err := dicom.ReadPart10File(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	tmp, size, err := imp.app.committer.StageTemp(f)
	f.Close()
	if err != nil {
		return err
	}

	res, err := imp.pipeline.Ingest(ctx, ingest.Request{
		Dataset:           ds,
		TempFile:          tmp,
		TransferSyntaxUID: ts,
		CallingAET:        imp.callingAET,
		CalledAET:         imp.calledAET,
	})
	if err != nil || res.Outcome == ingest.DuplicateIgnored {
		os.Remove(tmp)
	}
	if err != nil {
		return err
	}

	switch res.Outcome {
	case ingest.Stored:
		imp.stats.stored.Add(1)
		imp.stats.bytes.Add(size)
	case ingest.DuplicateStored:
		imp.stats.duplicates.Add(1)
		imp.stats.bytes.Add(size)
	case ingest.DuplicateIgnored:
		imp.stats.ignored.Add(1)
	}
	return nil
}
