package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"facescan/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facescand.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %#v %d %v", lines, offset, err)
	}
}

func follow(t *testing.T, path string, offset int64) (<-chan string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := logs.Follow(ctx, path, offset, func(line string) { lines <- line }); err != nil {
			t.Errorf("Follow: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	return lines, cancel
}

func appendLine(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func expectLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	select {
	case got := <-lines:
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facescand.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	lines, _ := follow(t, path, offset)
	appendLine(t, path, "par")
	appendLine(t, path, "tial\nnext\n")

	expectLine(t, lines, "partial")
	expectLine(t, lines, "next")
}

func TestFollowReopensRelinkedPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "facescand-1.log")
	second := filepath.Join(dir, "facescand-2.log")
	pointer := filepath.Join(dir, "facescand.log")
	appendLine(t, first, "old\n")
	if err := os.Symlink(first, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	_, offset, err := logs.Last(pointer, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	lines, _ := follow(t, pointer, offset)
	appendLine(t, second, "fresh\n")
	if err := os.Remove(pointer); err != nil {
		t.Fatalf("remove pointer: %v", err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatalf("relink: %v", err)
	}

	expectLine(t, lines, "fresh")
}
