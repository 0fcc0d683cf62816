package logtail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// waitFor polls until out contains want.
func waitFor(t *testing.T, out *syncBuf, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q; got %q", want, out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTail(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cron.log")
	for i := 1; i <= 7; i++ {
		appendLine(t, path, fmt.Sprintf("line %d", i))
	}

	lines, err := Tail(path, 3)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if want := []string{"line 5", "line 6", "line 7"}; !slices.Equal(lines, want) {
		t.Fatalf("Tail(3) = %q, want %q", lines, want)
	}

	if lines, err = Tail(path, 100); err != nil || len(lines) != 7 {
		t.Fatalf("Tail(100) = %d lines, %v", len(lines), err)
	}

	if lines, err = Tail(filepath.Join(t.TempDir(), "missing.log"), 3); err != nil || len(lines) != 0 {
		t.Fatalf("Tail(missing) = %q, %v", lines, err)
	}
}

func TestFollowAcrossRotation(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cron.log")
	appendLine(t, path, "old history")

	var out syncBuf
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, &out, FollowOptions{Poll: 50 * time.Millisecond}) }()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "run one")
	waitFor(t, &out, "run one\n")

	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	appendLine(t, path, "run two")
	waitFor(t, &out, "run two\n")

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	appendLine(t, path, "r3")
	waitFor(t, &out, "r3\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("follow did not stop")
	}
	if strings.Contains(out.String(), "old history") {
		t.Fatalf("Follow replayed existing content: %q", out.String())
	}
}

func TestFollowWaitsForFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cron.log")
	var out syncBuf
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Follow(ctx, path, &out, FollowOptions{Poll: 50 * time.Millisecond}) }()

	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "first run")
	waitFor(t, &out, "first run\n")
	if got := out.String(); got != "first run\n" {
		t.Fatalf("output = %q", got)
	}
}
