package scanworker

import "facescan/internal/ledger"

// Kind distinguishes the two worklists.
type Kind int

const (
	KindAll Kind = iota
	KindSingle
)

func (k Kind) String() string {
	if k == KindSingle {
		return "single"
	}
	return "all"
}

// Item is one catalog row queued for scanning.
type Item struct {
	ledger.MediaItem
	Kind Kind
}

// worklist is an ordered item list with a cursor that only moves forward.
type worklist struct {
	items  []Item
	cursor int
}

func (w *worklist) load(rows []ledger.MediaItem, kind Kind) {
	w.items = make([]Item, 0, len(rows))
	for _, row := range rows {
		w.items = append(w.items, Item{MediaItem: row, Kind: kind})
	}
	w.cursor = 0
}

func (w *worklist) drained() bool {
	return w.cursor >= len(w.items)
}

func (w *worklist) remaining() int {
	return len(w.items) - w.cursor
}

// next returns the item at the cursor and advances past it.
func (w *worklist) next() (Item, bool) {
	if w.drained() {
		return Item{}, false
	}
	item := w.items[w.cursor]
	w.cursor++
	return item, true
}

// dropPath removes not-yet-processed items whose path matches and reports how
// many were removed. Items behind the cursor are left alone.
func (w *worklist) dropPath(path string) int {
	if w.drained() {
		return 0
	}
	kept := w.items[:w.cursor]
	dropped := 0
	for _, item := range w.items[w.cursor:] {
		if item.Path == path {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	w.items = kept
	return dropped
}

func (w *worklist) clear() {
	w.items = nil
	w.cursor = 0
}
