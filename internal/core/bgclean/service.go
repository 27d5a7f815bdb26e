package bgclean

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"bananagen/internal/logger"
	"bananagen/internal/notify"
	"bananagen/internal/retry"
	"bananagen/internal/state"

	"golang.org/x/sync/errgroup"
)

// Editor is the remote image-edit contract: one source image plus an
// instruction prompt in, edited bytes out.
type Editor interface {
	Edit(ctx context.Context, prompt string, image []byte, mimeType string) ([]byte, string, error)
}

type Config struct {
	Root      string
	OutputDir string // subdirectory name under Root; defaults to "CLEANED"
	Prompt    string
	Workers   int
	Retry     retry.Policy

	DryRun bool
	// TestLimit restricts the walk to the first N top-level subfolders
	// when positive, for cheap smoke runs against a large tree.
	TestLimit int
}

// Result counts one cleanup run.
type Result struct {
	Found     int
	Succeeded int
	Failed    int
}

func (r Result) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Service re-renders product PNGs onto a pure white background. Each image
// is independent, destinations never collide, so the work fans out across a
// bounded pool; the error journal is the only shared mutable state.
type Service struct {
	editor   Editor
	store    *state.Store
	notifier notify.Service
	cfg      Config
	log      *logger.Logger

	mu sync.Mutex
}

func NewService(editor Editor, store *state.Store, notifier notify.Service, cfg Config) *Service {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "CLEANED"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Service{
		editor:   editor,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.New("BgClean"),
	}
}

func (s *Service) Run(ctx context.Context) (Result, error) {
	sources, err := s.collect()
	if err != nil {
		return Result{}, err
	}
	result := Result{Found: len(sources)}
	s.log.LogInfof("found %d PNG(s) under %s", len(sources), s.cfg.Root)

	if s.cfg.DryRun {
		for _, src := range sources {
			s.log.LogInfof("dry-run: would clean %s", src)
		}
		return result, nil
	}

	var succeeded, failed int
	var countMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := s.cleanOne(gctx, src)
			countMu.Lock()
			if err != nil {
				failed++
			} else {
				succeeded++
			}
			countMu.Unlock()
			if err != nil && gctx.Err() != nil {
				// Stop the pool on interruption, not on ordinary failures.
				return gctx.Err()
			}
			return nil
		})
	}
	err = g.Wait()

	result.Succeeded = succeeded
	result.Failed = failed
	s.log.LogInfof("bgclean done: %d succeeded, %d failed", succeeded, failed)
	if failed > 0 {
		_ = s.notifier.NotifyError(ctx, "Bgclean finished with failures",
			fmt.Sprintf("%d of %d images failed", failed, len(sources)))
	}
	if err != nil && ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// collect walks Root for PNGs, skipping the output subtree so reruns do not
// re-clean their own results. Paths come back sorted for determinism.
func (s *Service) collect() ([]string, error) {
	outRoot := filepath.Join(s.cfg.Root, s.cfg.OutputDir)

	allowed := map[string]bool{}
	if s.cfg.TestLimit > 0 {
		entries, err := os.ReadDir(s.cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("read bgclean root: %w", err)
		}
		count := 0
		for _, e := range entries {
			if !e.IsDir() || e.Name() == s.cfg.OutputDir {
				continue
			}
			if count >= s.cfg.TestLimit {
				break
			}
			allowed[e.Name()] = true
			count++
		}
	}

	var sources []string
	err := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == outRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".png") {
			return nil
		}
		if s.cfg.TestLimit > 0 {
			rel, relErr := filepath.Rel(s.cfg.Root, path)
			if relErr != nil {
				return relErr
			}
			top := strings.Split(rel, string(os.PathSeparator))[0]
			if top != rel && !allowed[top] {
				return nil
			}
		}
		sources = append(sources, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.cfg.Root, err)
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *Service) cleanOne(ctx context.Context, src string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		s.record(src, err)
		return err
	}

	var cleaned []byte
	err = retry.Do(ctx, s.log, "edit "+filepath.Base(src), s.cfg.Retry, func() error {
		var editErr error
		cleaned, _, editErr = s.editor.Edit(ctx, s.cfg.Prompt, raw, "image/png")
		return editErr
	})
	if err != nil {
		if ctx.Err() == nil {
			s.record(src, err)
		}
		return err
	}

	rel, err := filepath.Rel(s.cfg.Root, src)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.cfg.Root, s.cfg.OutputDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		s.record(src, err)
		return err
	}
	// Overwrite: regeneration is always destructive.
	if err := os.WriteFile(dst, cleaned, 0o644); err != nil {
		s.record(src, err)
		return err
	}
	s.log.LogDebugf("cleaned %s -> %s", src, dst)
	return nil
}

func (s *Service) record(src string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := state.NewErrorEntry(filepath.Base(filepath.Dir(src)), "bg_clean", "edit_failed", err)
	entry.Meta = map[string]string{"file": src}
	if journalErr := s.store.AppendError(entry); journalErr != nil {
		s.log.LogError("failed to append journal entry", journalErr)
	}
}
