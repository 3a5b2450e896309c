package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"img2pdf/internal/metrics"
	"img2pdf/internal/model"
	"img2pdf/internal/repository"
	"img2pdf/internal/storage"
)

const (
	tracerName     = "img2pdf/service"
	documentSuffix = "_output.pdf"
	archiveTimeout = time.Minute
)

// Normalizer persists one normalized copy of an uploaded image under dir.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, originalName, dir string) (*model.NormalizedImage, error)
}

// Assembler writes the document built from paths to outPath.
type Assembler interface {
	AssembleFile(ctx context.Context, paths []string, outPath string) (int64, error)
}

// IngestedImage is what the client learns about each accepted image.
type IngestedImage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Size       string `json:"size"`
	Format     string `json:"format"`
	Conversion string `json:"conversion,omitempty"`
}

// IngestResult is returned by a successful Ingest.
type IngestResult struct {
	SessionID string
	Created   bool
	Images    []IngestedImage
}

// GenerateResult is returned by a successful Generate.
type GenerateResult struct {
	SessionID    string
	DocumentName string
	Pages        int
	Bytes        int64
}

// Delivery is the document handed to a SendFunc.
type Delivery struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SendFunc hands a document to the transport. It must return only after the
// bytes are fully written or buffered for writing; an error leaves the session intact.
type SendFunc func(ctx context.Context, d Delivery) error

// ReapReport lists what one sweep removed.
type ReapReport struct {
	Sessions []string
	Orphans  []string
}

// SessionService orchestrates the upload, generate, download and cleanup flow.
type SessionService interface {
	// Ingest normalizes files into the session, creating one when sessionID is
	// empty. The batch is all-or-nothing: on any failure no file of this call
	// remains and a session created by this call is torn down.
	Ingest(ctx context.Context, sessionID string, files []model.Upload) (*IngestResult, error)

	// Generate assembles the session's images, in upload order, into its document.
	Generate(ctx context.Context, sessionID string) (*GenerateResult, error)

	// Retrieve passes the generated document to send and, once send succeeds,
	// tears the session down. A session can be retrieved only once.
	Retrieve(ctx context.Context, sessionID string, send SendFunc) error

	// Cleanup tears the session down. Unknown ids are ignored.
	Cleanup(ctx context.Context, sessionID string)

	// Reap removes sessions idle for longer than threshold and working
	// directories that belong to no live session.
	Reap(ctx context.Context, now time.Time, threshold time.Duration) ReapReport

	// Healthy reports whether sessions can currently be created.
	Healthy(ctx context.Context) error
}

// Options configures a SessionService.
type Options struct {
	RootDir          string
	Workers          int
	MaxFilesPerBatch int
	MaxUploadBytes   int64
	NormalizeTimeout time.Duration

	// Archive, when set, receives a copy of every delivered document.
	Archive storage.Archive
	Metrics *metrics.Pipeline
	Logger  *zap.Logger
}

type sessionService struct {
	repo    repository.SessionRepository
	norm    Normalizer
	asm     Assembler
	opts    Options
	log     *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Pipeline

	generating singleflight.Group
}

// NewSessionService creates the root directory if needed and returns the service.
func NewSessionService(repo repository.SessionRepository, norm Normalizer, asm Assembler, opts Options) (SessionService, error) {
	if opts.RootDir == "" {
		return nil, errors.New("session root directory is required")
	}
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve session root: %w", err)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create session root: %v", model.ErrStorage, err)
	}
	opts.RootDir = root
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &sessionService{
		repo:    repo,
		norm:    norm,
		asm:     asm,
		opts:    opts,
		log:     log.Named("session"),
		tracer:  otel.Tracer(tracerName),
		metrics: opts.Metrics,
	}, nil
}

// DocumentName is the download name of a session's document.
func DocumentName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "converted_images_" + short + ".pdf"
}

func (s *sessionService) Ingest(ctx context.Context, sessionID string, files []model.Upload) (res *IngestResult, err error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Ingest",
		trace.WithAttributes(attribute.Int("files", len(files))))
	defer func() { endSpan(span, err) }()

	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if s.opts.MaxFilesPerBatch > 0 && len(files) > s.opts.MaxFilesPerBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(files), s.opts.MaxFilesPerBatch)
	}
	for i, f := range files {
		if s.opts.MaxUploadBytes > 0 && int64(len(f.Data)) > s.opts.MaxUploadBytes {
			return nil, &BatchError{Index: i, Name: f.Name, Err: ErrFileTooLarge}
		}
	}

	sess, created, err := s.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID), attribute.Bool("created", created))

	results, err := s.normalizeAll(ctx, sess.WorkingDir, files)
	if err == nil {
		err = s.appendResults(ctx, sess.ID, files, results)
	}
	if err != nil {
		removeFiles(results)
		if created {
			s.teardown(ctx, sess.ID, metrics.CauseRollback)
		}
		s.log.Info("upload rejected",
			zap.String("session_id", sess.ID),
			zap.Int("files", len(files)),
			zap.Error(err),
		)
		return nil, err
	}

	res = &IngestResult{SessionID: sess.ID, Created: created, Images: make([]IngestedImage, len(results))}
	for i, r := range results {
		res.Images[i] = IngestedImage{
			ID:         imageID(r.Path),
			Name:       files[i].Name,
			Size:       r.Size(),
			Format:     r.Format,
			Conversion: r.Conversion,
		}
	}
	s.log.Info("images uploaded",
		zap.String("session_id", sess.ID),
		zap.Int("images", len(results)),
		zap.Bool("new_session", created),
	)
	return res, nil
}

// openSession returns the session to ingest into. A new session is registered
// before its directory exists so the reaper never mistakes the directory for an orphan.
func (s *sessionService) openSession(ctx context.Context, sessionID string) (*model.Session, bool, error) {
	if sessionID != "" {
		sess, err := s.repo.Get(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}
		return sess, false, nil
	}

	sess, err := s.repo.Create(ctx, s.opts.RootDir)
	if err != nil {
		return nil, false, err
	}
	if err := os.Mkdir(sess.WorkingDir, 0o700); err != nil {
		s.repo.Remove(ctx, sess.ID)
		return nil, false, fmt.Errorf("%w: create session dir: %v", model.ErrStorage, err)
	}
	return sess, true, nil
}

// normalizeAll runs the normalizer over files with bounded parallelism. Results
// are indexed by upload position, never by completion order. On error every
// file already written is still reported so the caller can remove it.
func (s *sessionService) normalizeAll(ctx context.Context, dir string, files []model.Upload) ([]*model.NormalizedImage, error) {
	results := make([]*model.NormalizedImage, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, f := range files {
		g.Go(func() error {
			nctx := gctx
			if s.opts.NormalizeTimeout > 0 {
				var cancel context.CancelFunc
				nctx, cancel = context.WithTimeout(gctx, s.opts.NormalizeTimeout)
				defer cancel()
			}

			start := time.Now()
			out, err := s.norm.Normalize(nctx, f.Data, f.Name, dir)
			if err != nil {
				s.metrics.NormalizeFailed(failureReason(err))
				return &BatchError{Index: i, Name: f.Name, Err: err}
			}
			s.metrics.ImageNormalized(out.SourceFormat, out.Format, time.Since(start))
			results[i] = out
			return nil
		})
	}
	return results, g.Wait()
}

func (s *sessionService) appendResults(ctx context.Context, sessionID string, files []model.Upload, results []*model.NormalizedImage) error {
	records := make([]model.ImageRecord, len(results))
	for i, r := range results {
		records[i] = model.ImageRecord{
			ID:          imageID(r.Path),
			DisplayName: files[i].Name,
			StoragePath: r.Path,
			Format:      r.Format,
			Width:       r.Width,
			Height:      r.Height,
		}
	}
	stale, err := s.repo.Append(ctx, sessionID, records...)
	if err != nil {
		return err
	}
	if stale != "" {
		s.removeFile(stale)
	}
	return nil
}

func (s *sessionService) Generate(ctx context.Context, sessionID string) (res *GenerateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Generate",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer func() { endSpan(span, err) }()

	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	// At most one assembly per session runs at a time; callers arriving while
	// it runs share its outcome.
	v, err, _ := s.generating.Do(sessionID, func() (any, error) {
		return s.generate(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*GenerateResult)
	return &out, nil
}

func (s *sessionService) generate(ctx context.Context, sessionID string) (*GenerateResult, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Images) == 0 {
		return nil, ErrNoImages
	}

	out := filepath.Join(sess.WorkingDir, sess.ID+documentSuffix)
	start := time.Now()
	size, err := s.asm.AssembleFile(ctx, sess.ImagePaths(), out)
	if err != nil {
		s.metrics.GenerateFailed(failureReason(err))
		if cerr := s.repo.ClearDocumentPath(ctx, sessionID); cerr != nil && !errors.Is(cerr, repository.ErrSessionNotFound) {
			s.log.Warn("clear document path", zap.String("session_id", sessionID), zap.Error(cerr))
		}
		s.removeFile(out)
		return nil, fmt.Errorf("generate document: %w", err)
	}
	if err := s.repo.SetDocumentPath(ctx, sessionID, out, len(sess.Images)); err != nil {
		s.removeFile(out)
		if errors.Is(err, ErrSessionChanged) {
			s.metrics.GenerateFailed(failureReason(err))
			s.log.Info("document discarded, images added during generation",
				zap.String("session_id", sessionID),
				zap.Int("pages", len(sess.Images)),
			)
		}
		return nil, err
	}
	s.metrics.DocumentGenerated(time.Since(start))

	s.log.Info("document generated",
		zap.String("session_id", sessionID),
		zap.Int("pages", len(sess.Images)),
		zap.Int64("bytes", size),
	)
	return &GenerateResult{
		SessionID:    sessionID,
		DocumentName: DocumentName(sessionID),
		Pages:        len(sess.Images),
		Bytes:        size,
	}, nil
}

func (s *sessionService) Retrieve(ctx context.Context, sessionID string, send SendFunc) (err error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Retrieve",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer func() { endSpan(span, err) }()

	if sessionID == "" {
		return ErrSessionIDRequired
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != model.StateDocumentReady || sess.DocumentPath == "" {
		return ErrDocumentNotReady
	}

	f, err := os.Open(sess.DocumentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Torn down or invalidated since the lookup above.
			if _, gerr := s.repo.Get(ctx, sessionID); gerr != nil {
				return gerr
			}
			return ErrDocumentNotReady
		}
		return fmt.Errorf("%w: open document: %v", model.ErrStorage, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat document: %v", model.ErrStorage, err)
	}

	if err := send(ctx, Delivery{
		Name:        DocumentName(sessionID),
		ContentType: "application/pdf",
		Size:        info.Size(),
		Body:        f,
	}); err != nil {
		s.log.Warn("document send failed, session kept",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return fmt.Errorf("send document: %w", err)
	}

	if err := s.repo.MarkDelivered(ctx, sessionID); err != nil {
		s.log.Warn("mark delivered", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.metrics.DocumentDelivered()
	s.archive(ctx, sessionID, sess.DocumentPath)
	s.teardown(ctx, sessionID, metrics.CauseDelivered)

	s.log.Info("document delivered",
		zap.String("session_id", sessionID),
		zap.Int64("bytes", info.Size()),
	)
	return nil
}

// archive copies a delivered document to the archive. Failures are logged only.
func (s *sessionService) archive(ctx context.Context, sessionID, path string) {
	if s.opts.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		s.log.Warn("archive document", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer f.Close()
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	obj, err := s.opts.Archive.Put(ctx, storage.DocumentKey(sessionID), f, storage.PutOptions{
		Size:        size,
		ContentType: "application/pdf",
		Metadata:    map[string]string{"session-id": sessionID},
	})
	if err != nil {
		s.log.Warn("archive document", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	s.log.Debug("document archived", zap.String("key", obj.Key), zap.Int64("bytes", obj.Size))
}

func (s *sessionService) Cleanup(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if s.teardown(ctx, sessionID, metrics.CauseCleanup) {
		s.log.Info("session cleaned up", zap.String("session_id", sessionID))
	}
}

func (s *sessionService) Reap(ctx context.Context, now time.Time, threshold time.Duration) ReapReport {
	ctx, span := s.tracer.Start(ctx, "SessionService.Reap")
	defer span.End()

	var report ReapReport
	cutoff := now.Add(-threshold)
	for _, id := range s.repo.Expired(ctx, cutoff) {
		sess, ok := s.repo.RemoveIdle(ctx, id, cutoff)
		if !ok {
			continue
		}
		s.removeDir(sess.WorkingDir)
		s.metrics.SessionRemoved(metrics.CauseExpired)
		report.Sessions = append(report.Sessions, id)
	}

	// Directories are listed before sessions: a session is registered before its
	// directory is created, so any directory seen here whose session is missing
	// from the later listing is truly orphaned.
	entries, err := os.ReadDir(s.opts.RootDir)
	if err != nil {
		s.log.Warn("scan session root", zap.Error(fmt.Errorf("%w: %v", model.ErrStorage, err)))
		return report
	}
	live := make(map[string]bool)
	for _, sess := range s.repo.List(ctx) {
		live[sess.ID] = true
	}
	for _, e := range entries {
		if !e.IsDir() || live[e.Name()] {
			continue
		}
		// Only ever delete directories this service could have created.
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		s.removeDir(filepath.Join(s.opts.RootDir, e.Name()))
		s.metrics.OrphanRemoved()
		report.Orphans = append(report.Orphans, e.Name())
	}

	span.SetAttributes(
		attribute.Int("sessions", len(report.Sessions)),
		attribute.Int("orphans", len(report.Orphans)),
	)
	if len(report.Sessions) > 0 || len(report.Orphans) > 0 {
		s.log.Info("reaped",
			zap.Strings("sessions", report.Sessions),
			zap.Strings("orphans", report.Orphans),
		)
	}
	return report
}

func (s *sessionService) Healthy(ctx context.Context) error {
	f, err := os.CreateTemp(s.opts.RootDir, ".health-*")
	if err != nil {
		return fmt.Errorf("%w: session root not writable: %v", model.ErrStorage, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Ping(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// teardown removes the session and its directory. It reports whether this call
// removed the session; concurrent callers lose silently.
func (s *sessionService) teardown(ctx context.Context, sessionID, cause string) bool {
	sess, ok := s.repo.Remove(ctx, sessionID)
	if !ok {
		return false
	}
	s.removeDir(sess.WorkingDir)
	s.metrics.SessionRemoved(cause)
	return true
}

func (s *sessionService) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("remove session dir",
			zap.String("dir", dir),
			zap.Error(fmt.Errorf("%w: %v", model.ErrStorage, err)),
		)
	}
}

func (s *sessionService) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("remove file",
			zap.String("path", path),
			zap.Error(fmt.Errorf("%w: %v", model.ErrStorage, err)),
		)
	}
}

func removeFiles(results []*model.NormalizedImage) {
	for _, r := range results {
		if r != nil {
			_ = os.Remove(r.Path)
		}
	}
}

// imageID derives the record id from the generated file name.
func imageID(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
