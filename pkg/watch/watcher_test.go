package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const (
	debounce = 50 * time.Millisecond
	timeout  = 5 * time.Second
)

func startWatcher(t *testing.T, path string) (*Watcher, <-chan string) {
	t.Helper()
	w, err := NewWatcher(path, WithDebounce(debounce))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	changes := make(chan string, 16)
	w.OnChange = func(ctx context.Context, root string) error {
		changes <- root
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the loop a moment to start receiving.
	time.Sleep(20 * time.Millisecond)
	return w, changes
}

func waitChange(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	select {
	case got := <-changes:
		if got != want {
			t.Errorf("change for %s, want %s", got, want)
		}
	case <-time.After(timeout):
		t.Fatal("no change observed")
	}
}

func drain(changes <-chan string) {
	for {
		select {
		case <-changes:
		case <-time.After(4 * debounce):
			return
		}
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DirectoryArchive(t *testing.T) {
	root := t.TempDir()
	station := filepath.Join(root, "SCAN", "Abrams")
	if err := os.MkdirAll(station, 0755); err != nil {
		t.Fatal(err)
	}

	w, changes := startWatcher(t, root)
	if w.Root() != root {
		t.Errorf("Root() = %s", w.Root())
	}

	writeFile(t, filepath.Join(station, "a.stm"), "x")
	waitChange(t, changes, root)

	// A new station folder is watched as well.
	fresh := filepath.Join(root, "SCAN", "Bushland")
	if err := os.Mkdir(fresh, 0755); err != nil {
		t.Fatal(err)
	}
	waitChange(t, changes, root)
	drain(changes)

	writeFile(t, filepath.Join(fresh, "b.stm"), "y")
	waitChange(t, changes, root)
}

func TestWatcher_ZipArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	writeFile(t, zipPath, "zip")

	_, changes := startWatcher(t, zipPath)

	writeFile(t, filepath.Join(dir, "archive.log"), "unrelated")
	select {
	case <-changes:
		t.Fatal("change reported for an unrelated file")
	case <-time.After(6 * debounce):
	}

	writeFile(t, zipPath, "zip2")
	waitChange(t, changes, zipPath)
}

func TestWatcher_Debounce(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, WithDebounce(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	w.OnChange = func(ctx context.Context, root string) error {
		calls.Add(1)
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "burst.stm"), string(rune('a'+i)))
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(time.Second)
	cancel()
	<-done

	if got := calls.Load(); got != 1 {
		t.Errorf("OnChange called %d times for one burst, want 1", got)
	}
}

func TestNewWatcher_Missing(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("NewWatcher on a missing path succeeded")
	}
}
