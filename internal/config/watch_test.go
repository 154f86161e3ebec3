package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overlaymesh/ronet/internal/bus"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestWatcherAutobumpsVersionOnAmnesiaOnlyChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\namnesia = true\n")

	b := bus.New(4, nil)
	sub := b.Subscribe(TopicConfigUpdated)
	defer sub.Close()

	w, err := NewWatcher(path, LoadOptions{}, b, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().Version != 1 || !w.Current().Amnesia {
		t.Fatalf("unexpected initial config: %+v", w.Current())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	writeFile(t, path, "version = 1\namnesia = false\n")

	select {
	case env := <-sub.C:
		updated, ok := env.Value.(ConfigUpdated)
		if !ok {
			t.Fatalf("unexpected event payload %+v", env.Value)
		}
		if updated.Version != 2 {
			t.Fatalf("expected autobump to version 2, got %d", updated.Version)
		}
		if updated.Config.Amnesia {
			t.Fatalf("expected amnesia=false after reload")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a ConfigUpdated event after the debounce window")
	}
}

func TestWatcherSuppressesNoopReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n")

	b := bus.New(4, nil)
	sub := b.Subscribe(TopicConfigUpdated)
	defer sub.Close()

	w, err := NewWatcher(path, LoadOptions{}, b, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	// Byte-identical rewrite should never emit ConfigUpdated.
	writeFile(t, path, "version = 1\n")

	select {
	case env := <-sub.C:
		t.Fatalf("did not expect a ConfigUpdated event for a no-op reload, got %+v", env.Value)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n")

	b := bus.New(4, nil)
	sub := b.Subscribe(TopicConfigUpdated)
	defer sub.Close()

	w, err := NewWatcher(path, LoadOptions{}, b, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	writeFile(t, path, "version = 2\n[dht]\nalpha = 99\nk = 1\n")

	select {
	case env := <-sub.C:
		t.Fatalf("did not expect a ConfigUpdated event for an invalid reload, got %+v", env.Value)
	case <-time.After(600 * time.Millisecond):
	}
	if w.Current().Version != 1 {
		t.Fatalf("expected the watcher to keep the last valid config, got version %d", w.Current().Version)
	}
}
