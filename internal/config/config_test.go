package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slash.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadBasicTypes(t *testing.T) {
	path := writeConfig(t, `
// a comment
K = 4
L = 20
rangePow = 18
threshold = 0.75
data_file = "corpus.svm"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	k, err := cfg.Uint("K", 0)
	if err != nil || k != 4 {
		t.Fatalf("K = (%d, %v), want (4, nil)", k, err)
	}
	f, err := cfg.Float("threshold", 0)
	if err != nil || f != 0.75 {
		t.Fatalf("threshold = (%v, %v), want (0.75, nil)", f, err)
	}
	s, err := cfg.Str("data_file", 0)
	if err != nil || s != "corpus.svm" {
		t.Fatalf("data_file = (%q, %v), want (\"corpus.svm\", nil)", s, err)
	}
}

func TestLoadVectorValues(t *testing.T) {
	path := writeConfig(t, `peer_addrs = "10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := cfg.Len("peer_addrs"); n != 3 {
		t.Fatalf("Len(peer_addrs) = %d, want 3", n)
	}
	a1, err := cfg.Str("peer_addrs", 1)
	if err != nil || a1 != "10.0.0.2:9000" {
		t.Fatalf("peer_addrs[1] = (%q, %v), want (\"10.0.0.2:9000\", nil)", a1, err)
	}
}

func TestMissingKeyError(t *testing.T) {
	path := writeConfig(t, `K = 4`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cfg.Uint("L", 0)
	if _, ok := err.(*ErrMissingKey); !ok {
		t.Fatalf("expected *ErrMissingKey, got %T: %v", err, err)
	}
}

func TestTypeMismatchError(t *testing.T) {
	path := writeConfig(t, `data_file = "corpus.svm"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cfg.Uint("data_file", 0)
	if _, ok := err.(*ErrTypeMismatch); !ok {
		t.Fatalf("expected *ErrTypeMismatch, got %T: %v", err, err)
	}
}

func TestMustUintPanicsOnMissing(t *testing.T) {
	path := writeConfig(t, `K = 1`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustUint to panic on missing key")
		}
	}()
	cfg.MustUint("missing", 0)
}

func TestMalformedLineErrors(t *testing.T) {
	path := writeConfig(t, "this is not valid\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed assignment")
	}
}

func TestStringRendersAllKeys(t *testing.T) {
	path := writeConfig(t, "K = 4\nname = \"slash\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.String()
	if s == "" {
		t.Fatal("String() produced no output")
	}
	for _, want := range []string{"K = 4", "name = 'slash'"} {
		if !strings.Contains(s, want) {
			t.Fatalf("String() missing %q: %s", want, s)
		}
	}
}
