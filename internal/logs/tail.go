package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 1024 * 1024

// Last returns up to n trailing lines of path and the offset of the end of
// the file. A missing file yields no lines and offset zero.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if n <= 0 {
		return nil, info.Size(), nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	ring := make([]string, n)
	total := 0
	for scanner.Scan() {
		ring[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	count := min(total, n)
	lines := make([]string, 0, count)
	for i := total - count; i < total; i++ {
		lines = append(lines, ring[i%n])
	}
	return lines, info.Size(), nil
}

// Follow calls emit for every complete line appended to path after offset
// until ctx is done. When path is replaced, reading restarts at the top of
// the new file.
func Follow(ctx context.Context, path string, offset int64, emit func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := resolve(path)
	if target != path && filepath.Dir(target) != dir {
		if err := watcher.Add(filepath.Dir(target)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
		}
	}

	// Lines written between Last and the watch registration.
	if offset, err = drain(target, offset, emit); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Name == path && event.Has(fsnotify.Create):
				target = resolve(path)
				offset = 0
			case event.Name != target || !event.Has(fsnotify.Write):
				continue
			}
			if offset, err = drain(target, offset, emit); err != nil {
				return err
			}
		}
	}
}

func resolve(path string) string {
	if target, err := filepath.EvalSymlinks(path); err == nil {
		return target
	}
	return path
}

// drain emits complete lines after offset and returns the offset just past
// the last newline, so a partially written line is picked up on the next call.
func drain(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(file, info.Size()-offset))
	if err != nil {
		return offset, fmt.Errorf("read log file: %w", err)
	}
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		emit(string(data[:idx]))
		data = data[idx+1:]
		offset += int64(idx + 1)
	}
	return offset, nil
}
