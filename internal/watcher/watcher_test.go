package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	var indexed []string
	var mu sync.Mutex
	onIndex := func(path string) {
		mu.Lock()
		indexed = append(indexed, path)
		mu.Unlock()
	}
	w := NewWatcher([]string{dir}, []string{".txt"}, true, onIndex, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(sub, "f.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	// A non-matching extension must be ignored.
	if err := os.WriteFile(filepath.Join(sub, "f.png"), []byte("bin"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), indexed...)
		mu.Unlock()
		if len(got) >= 1 {
			for _, p := range got {
				if filepath.Ext(p) != ".txt" {
					t.Errorf("indexed non-matching file %s", p)
				}
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no index callback before deadline")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "already.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	var indexed []string
	var mu sync.Mutex
	w := NewWatcher([]string{dir}, []string{".txt"}, false, func(path string) {
		mu.Lock()
		indexed = append(indexed, path)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.SyncExistingFiles()
	mu.Lock()
	defer mu.Unlock()
	if len(indexed) != 1 || filepath.Base(indexed[0]) != "already.txt" {
		t.Errorf("indexed = %v", indexed)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "drop")
	w := NewWatcher([]string{root}, nil, false, func(string) {})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w := NewWatcher([]string{t.TempDir()}, nil, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
