package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CompletionIndex answers whether a video id already reached a terminal state.
// The progress store implements it.
type CompletionIndex interface {
	IsComplete(id string) bool
}

// Catalog enumerates candidate video inputs and intersects them with the
// completion index to produce the pending work set. It has no side effects.
type Catalog struct {
	dir   string
	index CompletionIndex
}

// NewCatalog returns a catalog over the given videos directory.
func NewCatalog(dir string, index CompletionIndex) *Catalog {
	return &Catalog{dir: dir, index: index}
}

// ListPending returns up to max pending items, ordered lexicographically by
// id so repeated runs process in a stable order. max <= 0 means no limit.
func (c *Catalog) ListPending(max int) ([]Item, error) {
	items, err := c.listAll()
	if err != nil {
		return nil, err
	}
	pending := make([]Item, 0, len(items))
	for _, item := range items {
		if c.index != nil && c.index.IsComplete(item.ID) {
			continue
		}
		pending = append(pending, item)
		if max > 0 && len(pending) >= max {
			break
		}
	}
	return pending, nil
}

// Counts returns the number of candidate videos and how many of them are
// still pending.
func (c *Catalog) Counts() (total, pending int, err error) {
	items, err := c.listAll()
	if err != nil {
		return 0, 0, err
	}
	total = len(items)
	for _, item := range items {
		if c.index == nil || !c.index.IsComplete(item.ID) {
			pending++
		}
	}
	return total, pending, nil
}

func (c *Catalog) listAll() ([]Item, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read videos directory %s: %w", c.dir, err)
	}
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		items = append(items, ItemFromPath(filepath.Join(c.dir, entry.Name())))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
