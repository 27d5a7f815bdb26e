package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"bananagen/internal/logger"

	"github.com/gofrs/flock"
)

// completion is the on-disk shape of the resumption state. Only fully
// finished SKUs are recorded; an interrupted SKU is redone from scratch.
type completion struct {
	CompletedSKUs []string `json:"completed_skus"`
}

type journal struct {
	Errors []ErrorEntry `json:"errors"`
}

// ErrorEntry is one structured failure record. The journal grows
// monotonically and is never pruned by the tool.
type ErrorEntry struct {
	Timestamp   string            `json:"timestamp"`
	ProductCode string            `json:"product_code"`
	Prompt      string            `json:"prompt"`
	ErrorCode   string            `json:"error_code"`
	ErrorType   string            `json:"error_type,omitempty"`
	Error       string            `json:"error"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// NewErrorEntry stamps an entry with the current wall clock in the same
// format the journal has always used.
func NewErrorEntry(productCode, prompt, errorCode string, err error) ErrorEntry {
	entry := ErrorEntry{
		Timestamp:   time.Now().Format("2006-01-02 15:04:05"),
		ProductCode: productCode,
		Prompt:      prompt,
		ErrorCode:   errorCode,
	}
	if err != nil {
		entry.ErrorType = fmt.Sprintf("%T", err)
		entry.Error = err.Error()
	}
	return entry
}

// Store persists the completion state and error journal as JSON files with
// atomic replace on every mutation. A file lock next to the state file
// guards against a second operator starting a concurrent run; access within
// one process is strictly sequential.
type Store struct {
	statePath string
	errorPath string
	lock      *flock.Flock
	log       *logger.Logger
}

func Open(statePath, errorPath string) (*Store, error) {
	s := &Store{
		statePath: statePath,
		errorPath: errorPath,
		lock:      flock.New(statePath + ".lock"),
		log:       logger.New("StateStore"),
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state file %s is locked; is another run active?", statePath)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.lock.Unlock()
}

// CompletedSKUs returns the resumption set. A missing or corrupt state file
// yields an empty set: the completed list is advisory, so availability wins
// over strict validation.
func (s *Store) CompletedSKUs() map[string]struct{} {
	var c completion
	s.loadJSON(s.statePath, &c)
	set := make(map[string]struct{}, len(c.CompletedSKUs))
	for _, code := range c.CompletedSKUs {
		set[code] = struct{}{}
	}
	return set
}

// MarkComplete records a fully finished SKU. Read-modify-write with atomic
// replace so a crash mid-save leaves the previous file intact.
func (s *Store) MarkComplete(productCode string) error {
	set := s.CompletedSKUs()
	set[productCode] = struct{}{}

	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return s.saveJSON(s.statePath, completion{CompletedSKUs: codes})
}

// AppendError makes one failure durable immediately. The whole journal is
// rewritten per append, which is acceptable because failures are rare
// relative to total operations.
func (s *Store) AppendError(entry ErrorEntry) error {
	var j journal
	s.loadJSON(s.errorPath, &j)
	j.Errors = append(j.Errors, entry)
	s.log.LogDebugf("journal append: %s for %s:%s", entry.ErrorCode, entry.ProductCode, entry.Prompt)
	return s.saveJSON(s.errorPath, j)
}

// Errors returns the full journal, mostly for tests and operator tooling.
func (s *Store) Errors() []ErrorEntry {
	var j journal
	s.loadJSON(s.errorPath, &j)
	return j.Errors
}

func (s *Store) loadJSON(path string, v any) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.LogWarnf("failed to read %s: %v; starting from empty", path, err)
		}
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.log.LogWarnf("failed to parse %s: %v; starting from empty", path, err)
	}
}

func (s *Store) saveJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
