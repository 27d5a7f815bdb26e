package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeCatalog(t, `[
		{"product_code":"ABC1","ecomm_prompts":{"top":"t","side":"s","front_45":"f"},"lifestyle_prompt":"l"}
	]`)
	items, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	w := items[0]
	if w.ProductCode != "ABC1" {
		t.Errorf("product code = %q", w.ProductCode)
	}
	for angle, want := range map[string]string{"top": "t", "side": "s", "front_45": "f", "lifestyle": "l"} {
		if got := w.Prompt(angle); got != want {
			t.Errorf("Prompt(%q) = %q, want %q", angle, got, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestLoadEmptyCatalog(t *testing.T) {
	path := writeCatalog(t, `[]`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestPendingPreservesOrder(t *testing.T) {
	items := []WorkItem{
		{ProductCode: "A"},
		{ProductCode: "B"},
		{ProductCode: "C"},
		{ProductCode: "D"},
	}
	completed := map[string]struct{}{"B": {}}

	got := Pending(items, completed, 0)
	want := []string{"A", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("pending count = %d, want %d", len(got), len(want))
	}
	for i, code := range want {
		if got[i].ProductCode != code {
			t.Errorf("pending[%d] = %q, want %q", i, got[i].ProductCode, code)
		}
	}
}

func TestPendingStopAfter(t *testing.T) {
	items := []WorkItem{{ProductCode: "A"}, {ProductCode: "B"}, {ProductCode: "C"}}

	got := Pending(items, nil, 2)
	if len(got) != 2 || got[0].ProductCode != "A" || got[1].ProductCode != "B" {
		t.Fatalf("stop-after cap not order-preserving: %+v", got)
	}

	// Zero means no cap.
	if got := Pending(items, nil, 0); len(got) != 3 {
		t.Fatalf("expected all items with cap 0, got %d", len(got))
	}
}

func TestFindReferenceFolder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"ABC1 - 12345", "XYZ9 misc", "notes.txt"} {
		full := filepath.Join(root, name)
		if filepath.Ext(name) == ".txt" {
			if err := os.WriteFile(full, nil, 0o644); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.Mkdir(full, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindReferenceFolder(root, "ABC1")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(root, "ABC1 - 12345") {
		t.Errorf("folder = %q", got)
	}

	got, err = FindReferenceFolder(root, "QQQ0")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty result for unmatched code, got %q", got)
	}
}
