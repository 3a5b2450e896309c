package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"img2pdf/internal/config"
	"img2pdf/internal/fsutil"
	"img2pdf/internal/logger"
	"img2pdf/internal/model"
	"img2pdf/internal/service"
)

func newConvertCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert [flags] IMAGE...",
		Short: "Convert local images into one PDF",
		Long: `Runs the same pipeline as the HTTP service over local files: the images are
normalized into a temporary session, assembled in the order given and the
document is written to --output. The session is removed afterwards.`,
		Example: `  img2pdf convert -o scans.pdf page1.heic page2.jpg page3.png`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return convert(cmd.Context(), cfg, args, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "output.pdf", "Path of the PDF to write")

	return cmd
}

func convert(ctx context.Context, cfg *config.AppConfig, paths []string, output string, out io.Writer) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	uploads := make([]model.Upload, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		uploads[i] = model.Upload{Name: filepath.Base(p), Data: data}
	}

	// A private root keeps the run away from directories owned by a running server.
	root, err := os.MkdirTemp("", "img2pdf-convert-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)
	cfg.Session.RootDir = root
	if cfg.Session.MaxFilesPerBatch < len(uploads) {
		cfg.Session.MaxFilesPerBatch = len(uploads)
	}

	svc, err := pipeline(ctx, cfg, nil, log)
	if err != nil {
		return err
	}

	ingested, err := svc.Ingest(ctx, "", uploads)
	if err != nil {
		return err
	}
	sessionID := ingested.SessionID
	defer svc.Cleanup(context.WithoutCancel(ctx), sessionID)

	generated, err := svc.Generate(ctx, sessionID)
	if err != nil {
		return err
	}

	var written int64
	err = svc.Retrieve(ctx, sessionID, func(_ context.Context, d service.Delivery) error {
		n, err := fsutil.WriteAtomic(output, func(w io.Writer) error {
			_, err := io.Copy(w, d.Body)
			return err
		})
		written = n
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	for _, img := range ingested.Images {
		fmt.Fprintf(out, "%-40s %-10s %s\n", img.Name, img.Size, img.Format)
	}
	fmt.Fprintf(out, "wrote %s (%d pages, %d bytes)\n", output, generated.Pages, written)
	log.Debug("convert finished", zap.String("session_id", sessionID), zap.String("output", output))
	return nil
}
