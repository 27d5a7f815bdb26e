package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bananagen/internal/catalog"
	"bananagen/internal/logger"
	"bananagen/internal/notify"
	"bananagen/internal/platform/gemini"
	"bananagen/internal/retry"
	"bananagen/internal/state"
)

var (
	// ErrNoReferences means the reference folder held no accepted images.
	ErrNoReferences = errors.New("no reference images found")
	// ErrTooManyReferences means the folder exceeds the configured bound.
	// This is a data problem, not a transient one: nothing is uploaded.
	ErrTooManyReferences = errors.New("too many reference images")
	// ErrMissingReferenceFolder means no folder under the reference root
	// starts with the product code.
	ErrMissingReferenceFolder = errors.New("reference folder not found")
	// ErrQCFailed marks a quality-check failure escalated under
	// pause-on-error.
	ErrQCFailed = errors.New("quality check failed")
)

// Remote is the narrow contract with the generation endpoint. Both calls
// are assumed fallible and slow; retrying lives in this package, not in
// implementations.
type Remote interface {
	Upload(ctx context.Context, path string) (gemini.Reference, error)
	Generate(ctx context.Context, prompt string, refs []gemini.Reference) ([]byte, string, error)
}

type Config struct {
	ReferenceRoot string
	OutputRoot    string
	MaxRefImages  int
	AcceptedExts  []string
	UploadPace    time.Duration
	Retry         retry.Policy
	PauseOnError  bool
}

// Service runs the per-SKU workflow: upload references once, generate every
// angle against them, QC and persist each result, and mark the SKU complete
// only when every angle landed.
type Service struct {
	remote   Remote
	store    *state.Store
	notifier notify.Service
	cfg      Config
	log      *logger.Logger
}

func NewService(remote Remote, store *state.Store, notifier notify.Service, cfg Config) *Service {
	if cfg.MaxRefImages <= 0 {
		cfg.MaxRefImages = 6
	}
	if len(cfg.AcceptedExts) == 0 {
		cfg.AcceptedExts = []string{".jpg", ".jpeg"}
	}
	return &Service{
		remote:   remote,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.New("GenerateService"),
	}
}

// ProcessSKU returns nil only when the SKU fully succeeded and was marked
// complete. Context cancellation propagates unchanged so the controller can
// tell a pause from a failure.
func (s *Service) ProcessSKU(ctx context.Context, item catalog.WorkItem) error {
	code := item.ProductCode
	s.log.LogInfof("===== START SKU %s =====", code)

	folder, err := catalog.FindReferenceFolder(s.cfg.ReferenceRoot, code)
	if err != nil {
		return err
	}
	if folder == "" {
		msg := fmt.Sprintf("Reference folder not found for product_code %q under %s", code, s.cfg.ReferenceRoot)
		s.log.LogWarn(msg)
		s.journal(state.NewErrorEntry(code, "n/a", "reference_folder_missing", ErrMissingReferenceFolder))
		_ = s.notifier.NotifyWarning(ctx, "Missing references", msg)
		s.log.LogInfof("===== END SKU %s (failed: missing refs) =====", code)
		return fmt.Errorf("%w: %s", ErrMissingReferenceFolder, code)
	}

	outDir := filepath.Join(s.cfg.OutputRoot, filepath.Base(folder))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	refs, err := s.UploadReferences(ctx, folder)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.journal(state.NewErrorEntry(code, "upload", "upload_failed", err))
		_ = s.notifier.NotifyError(ctx, fmt.Sprintf("CRITICAL ERROR - %s / upload", code), err.Error())
		s.log.LogInfof("===== END SKU %s (failed: upload) =====", code)
		return err
	}

	for _, angle := range catalog.Angles {
		if err := s.generateAngle(ctx, item, angle, refs, outDir); err != nil {
			if ctx.Err() != nil {
				s.log.LogInfo("Interrupted mid-SKU; not marking as complete. Re-run to restart this SKU.")
				return ctx.Err()
			}
			s.log.LogInfof("===== END SKU %s (FAILED) =====", code)
			return err
		}
	}

	if err := s.store.MarkComplete(code); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	s.log.LogInfof("SKU complete: %s", code)
	s.log.LogInfof("===== END SKU %s (SUCCESS) =====", code)
	return nil
}

// UploadReferences lists the accepted images in folder (sorted, so repeated
// runs behave identically), enforces the min/max bounds, and uploads each
// file through the retry wrapper. The over-limit case fails before any
// network call.
func (s *Service) UploadReferences(ctx context.Context, folder string) ([]gemini.Reference, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read reference folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if s.accepted(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	s.log.LogDebugf("found %d reference(s) in %s: %v", len(names), folder, names)

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoReferences, folder)
	}
	if len(names) > s.cfg.MaxRefImages {
		msg := fmt.Sprintf("Folder %q has %d images; max allowed is %d", folder, len(names), s.cfg.MaxRefImages)
		s.log.LogWarn(msg)
		_ = s.notifier.NotifyWarning(ctx, "Too many reference images", msg)
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyReferences, len(names), s.cfg.MaxRefImages)
	}

	refs := make([]gemini.Reference, 0, len(names))
	for _, name := range names {
		path := filepath.Join(folder, name)
		var ref gemini.Reference
		err := retry.Do(ctx, s.log, "upload "+name, s.cfg.Retry, func() error {
			var uploadErr error
			ref, uploadErr = s.remote.Upload(ctx, path)
			return uploadErr
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		refs = append(refs, ref)
		s.log.LogDebugf("uploaded %s -> %s", name, ref.Name)
		s.pace(ctx)
	}
	s.log.LogInfof("Uploaded %d references from %s", len(refs), folder)
	return refs, nil
}

func (s *Service) generateAngle(ctx context.Context, item catalog.WorkItem, angle string, refs []gemini.Reference, outDir string) error {
	code := item.ProductCode
	prompt := item.Prompt(angle)
	s.log.LogInfof("[%s] Generating %q (prompt len=%d)", code, angle, len(prompt))

	var raw []byte
	var mime string
	err := retry.Do(ctx, s.log, fmt.Sprintf("generate %s/%s", code, angle), s.cfg.Retry, func() error {
		var genErr error
		raw, mime, genErr = s.remote.Generate(ctx, prompt, refs)
		return genErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errCode := "gen_failed"
		if errors.Is(err, gemini.ErrNoImageBytes) {
			errCode = "no_image_bytes"
		}
		s.journal(state.NewErrorEntry(code, angle, errCode, err))
		_ = s.notifier.NotifyError(ctx, fmt.Sprintf("CRITICAL ERROR - %s / %s", code, angle), err.Error())
		return fmt.Errorf("generate %s/%s: %w", code, angle, err)
	}

	ext := ExtForMIME(mime)
	rawPath := filepath.Join(outDir, fmt.Sprintf("%s_%s_raw%s", code, angle, ext))
	// Regeneration always overwrites; there is no versioning.
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", rawPath, err)
	}
	s.log.LogInfof("[%s] Saved %q to %s (bytes=%d, mime=%s)", code, angle, rawPath, len(raw), mime)

	square, w, h, qcErr := CheckSquare(raw)
	if qcErr != nil {
		square = false
		s.log.LogWarnf("[%s] %s: QC decode failed: %v", code, angle, qcErr)
	}
	if !square {
		msg := fmt.Sprintf("%s %s: image not square (%dx%d)", code, angle, w, h)
		s.log.LogWarn(msg)
		s.journal(state.ErrorEntry{
			Timestamp:   time.Now().Format("2006-01-02 15:04:05"),
			ProductCode: code,
			Prompt:      angle,
			ErrorCode:   "not_square",
			Error:       msg,
		})
		_ = s.notifier.NotifyWarning(ctx, fmt.Sprintf("QC warning - %s / %s (not square)", code, angle), msg)
		if s.cfg.PauseOnError {
			return fmt.Errorf("%w: %s", ErrQCFailed, msg)
		}
	}
	return nil
}

func (s *Service) accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ok := range s.cfg.AcceptedExts {
		if ext == strings.ToLower(ok) {
			return true
		}
	}
	return false
}

// pace spreads uploads slightly apart, honoring cancellation.
func (s *Service) pace(ctx context.Context) {
	if s.cfg.UploadPace <= 0 {
		return
	}
	timer := time.NewTimer(s.cfg.UploadPace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Service) journal(entry state.ErrorEntry) {
	if err := s.store.AppendError(entry); err != nil {
		s.log.LogError("failed to append journal entry", err)
	}
}
