package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"img2pdf/internal/assembler"
	"img2pdf/internal/config"
	"img2pdf/internal/imaging"
	"img2pdf/internal/lifecycle"
	"img2pdf/internal/metrics"
	"img2pdf/internal/repository/memory"
	"img2pdf/internal/service"
	"img2pdf/internal/storage"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "img2pdf",
		Short: "Normalize batches of images and assemble them into PDF documents",
		Long: `img2pdf accepts batches of images (JPEG, PNG, GIF, BMP, TIFF, WEBP, HEIC),
normalizes them to bounded, PDF-friendly encodings and assembles them into a
single PDF, one page per image in upload order.

Run "img2pdf serve" for the HTTP service or "img2pdf convert" for local files.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConvertCmd())

	return cmd
}

// pipeline builds the session service and its collaborators from configuration.
// reg may be nil, in which case no pipeline metrics are recorded.
func pipeline(ctx context.Context, cfg *config.AppConfig, reg prometheus.Registerer, log *zap.Logger) (service.SessionService, error) {
	machine, err := lifecycle.NewMachine()
	if err != nil {
		return nil, fmt.Errorf("build session lifecycle: %w", err)
	}
	store := memory.NewSessionMemory(machine)

	var archive storage.Archive
	if cfg.MinIO.Enabled {
		archive, err = storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("initialize document archive: %w", err)
		}
		log.Info("document archive enabled",
			zap.String("endpoint", cfg.MinIO.Endpoint),
			zap.String("bucket", cfg.MinIO.Bucket),
		)
	}

	var pm *metrics.Pipeline
	if reg != nil {
		pm, err = metrics.New(reg, store.Len)
		if err != nil {
			return nil, fmt.Errorf("register pipeline metrics: %w", err)
		}
	}

	s := cfg.Session
	norm := imaging.NewNormalizer(imaging.Options{
		MaxDimension: s.MaxDimension,
		MaxPixels:    s.MaxPixels,
		JPEGQuality:  s.JPEGQuality,
	}, log.Named("imaging"))
	asm := assembler.New(assembler.Options{MaxDocumentBytes: s.MaxDocumentBytes}, log.Named("assembler"))

	svc, err := service.NewSessionService(store, norm, asm, service.Options{
		RootDir:          s.RootDir,
		Workers:          s.Workers,
		MaxFilesPerBatch: s.MaxFilesPerBatch,
		MaxUploadBytes:   s.MaxUploadBytes,
		NormalizeTimeout: s.NormalizeTimeout,
		Archive:          archive,
		Metrics:          pm,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
