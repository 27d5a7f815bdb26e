package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Angles is the closed set of generation views, in processing order.
var Angles = []string{"top", "side", "front_45", "lifestyle"}

// WorkItem is one catalog record: a SKU plus its per-angle prompt texts.
// Items are immutable for the duration of a run.
type WorkItem struct {
	ProductCode     string       `json:"product_code"`
	EcommPrompts    EcommPrompts `json:"ecomm_prompts"`
	LifestylePrompt string       `json:"lifestyle_prompt"`
}

type EcommPrompts struct {
	Top     string `json:"top"`
	Side    string `json:"side"`
	Front45 string `json:"front_45"`
}

// Prompt returns the prompt text for one angle.
func (w WorkItem) Prompt(angle string) string {
	switch angle {
	case "top":
		return w.EcommPrompts.Top
	case "side":
		return w.EcommPrompts.Side
	case "front_45":
		return w.EcommPrompts.Front45
	case "lifestyle":
		return w.LifestylePrompt
	}
	return ""
}

// Load reads the catalog file. A missing file or an empty array is a fatal
// startup condition for the caller.
func Load(path string) ([]WorkItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var items []WorkItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return items, nil
}

// Pending filters items down to those whose product code is not yet in the
// completed set, preserving catalog order. stopAfter caps the result when
// positive; zero means no limit.
func Pending(items []WorkItem, completed map[string]struct{}, stopAfter int) []WorkItem {
	pending := make([]WorkItem, 0, len(items))
	for _, item := range items {
		if _, done := completed[item.ProductCode]; done {
			continue
		}
		pending = append(pending, item)
	}
	if stopAfter > 0 && len(pending) > stopAfter {
		pending = pending[:stopAfter]
	}
	return pending
}

// FindReferenceFolder locates the reference directory for a product code:
// the first directory under root whose name starts with the code. Empty
// string means no folder matched.
func FindReferenceFolder(root, code string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read reference root %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), code) {
			return filepath.Join(root, e.Name()), nil
		}
	}
	return "", nil
}
