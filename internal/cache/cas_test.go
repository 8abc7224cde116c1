package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forge/internal/cachekey"
)

func TestFSCasPutContainsOpen(t *testing.T) {
	dir := t.TempDir()
	cas, err := NewFSCas(filepath.Join(dir, "cas"))
	if err != nil {
		t.Fatalf("NewFSCas: %v", err)
	}

	key := cachekey.Key("deadbeef")
	if cas.Contains(key) {
		t.Fatal("expected key to be absent before Put")
	}

	if err := cas.Put(key, strings.NewReader("hello world")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !cas.Contains(key) {
		t.Fatal("expected key to be present after Put")
	}

	h, err := cas.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}

func TestFSCasOpenMissingKeyErrors(t *testing.T) {
	dir := t.TempDir()
	cas, err := NewFSCas(dir)
	if err != nil {
		t.Fatalf("NewFSCas: %v", err)
	}
	if _, err := cas.Open(cachekey.Key("missing")); err == nil {
		t.Fatal("expected error opening a missing key")
	}
}

func TestFSCasPutDoesNotLeakStagingFiles(t *testing.T) {
	dir := t.TempDir()
	cas, err := NewFSCas(dir)
	if err != nil {
		t.Fatalf("NewFSCas: %v", err)
	}
	if err := cas.Put(cachekey.Key("k1"), strings.NewReader("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Fatalf("found leaked staging file %q", e.Name())
		}
	}
}
