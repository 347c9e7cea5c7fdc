package scanworker

import (
	"testing"

	"facescan/internal/ledger"
)

func rows(paths ...string) []ledger.MediaItem {
	out := make([]ledger.MediaItem, 0, len(paths))
	for _, p := range paths {
		out = append(out, ledger.MediaItem{MediaID: "id-" + p, Path: p})
	}
	return out
}

func TestWorklistCursorMovesForwardOnly(t *testing.T) {
	var wl worklist
	wl.load(rows("a", "b", "c"), KindAll)

	var seen []string
	last := -1
	for {
		item, ok := wl.next()
		if !ok {
			break
		}
		if wl.cursor <= last || wl.cursor > len(wl.items) {
			t.Fatalf("cursor %d not monotonic within %d items", wl.cursor, len(wl.items))
		}
		last = wl.cursor
		seen = append(seen, item.Path)
	}
	if len(seen) != 3 || seen[0] != "a" || seen[2] != "c" {
		t.Fatalf("unexpected order %v", seen)
	}
	if !wl.drained() {
		t.Fatal("expected drained list")
	}
	if _, ok := wl.next(); ok {
		t.Fatal("next returned an item past the end")
	}

	wl.clear()
	if wl.cursor != 0 || len(wl.items) != 0 {
		t.Fatalf("clear left cursor=%d len=%d", wl.cursor, len(wl.items))
	}
}

func TestWorklistDropPathSkipsProcessedItems(t *testing.T) {
	var wl worklist
	wl.load(rows("a", "b", "a", "c"), KindAll)
	if _, ok := wl.next(); !ok {
		t.Fatal("expected first item")
	}

	if n := wl.dropPath("a"); n != 1 {
		t.Fatalf("expected one pending item dropped, got %d", n)
	}
	if wl.remaining() != 2 {
		t.Fatalf("expected 2 remaining, got %d", wl.remaining())
	}
	item, _ := wl.next()
	if item.Path != "b" {
		t.Fatalf("expected b next, got %s", item.Path)
	}
	if wl.items[0].Path != "a" {
		t.Fatal("processed item was removed")
	}
}

func TestWorklistItemsCarryKind(t *testing.T) {
	var wl worklist
	wl.load(rows("x"), KindSingle)
	item, _ := wl.next()
	if item.Kind != KindSingle || item.Kind.String() != "single" {
		t.Fatalf("unexpected kind %v", item.Kind)
	}
}
