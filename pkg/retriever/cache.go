package retriever

import (
	"errors"
	"sync"

	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

// Cache holds the code banks loaded while processing one record. Callers clear it
// between records; it is safe for concurrent use by the labels of a record.
type Cache struct {
	dir string

	mu    sync.Mutex
	banks map[string]bankEntry
}

type bankEntry struct {
	entries []terminology.CodeEntry
	err     error
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir, banks: make(map[string]bankEntry)}
}

// Bank returns the chapter's code bank, reading it on first use. A missing bank
// is remembered and reported as terminology.ErrCodeBankNotFound.
func (c *Cache) Bank(chapter string) ([]terminology.CodeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.banks[chapter]; ok {
		return b.entries, b.err
	}
	entries, err := terminology.LoadCodeBank(c.dir, chapter)
	if err == nil || errors.Is(err, terminology.ErrCodeBankNotFound) {
		c.banks[chapter] = bankEntry{entries: entries, err: err}
	}
	return entries, err
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banks = make(map[string]bankEntry)
}

// Len is the number of chapters currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.banks)
}
