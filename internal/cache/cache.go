// Package cache implements the Length Cache: a persistent mapping from
// (filename, mtime) to a previously computed (lengthTicks, sysexCount),
// bounded in size with FIFO eviction, so a load doesn't have to rescan a
// file's whole track set to know its length.
package cache

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// Capacity is the maximum number of entries kept; the oldest is evicted
// (FIFO) when a new name is inserted past this bound.
const Capacity = 500

// version is written as the cache file's first line; a mismatch discards
// the whole file rather than trying to interpret stale entries.
const version = 1

// Entry is one cached length-scan result.
type Entry struct {
	Name        string
	Mtime       uint32
	LengthTicks uint32
	SysexCount  int
}

// Cache holds length-scan results in insertion order, for FIFO eviction.
type Cache struct {
	entries []Entry
	byName  map[string]int // name -> index into entries
	path    string
	log     *zap.Logger
}

// New creates an empty cache that persists to path on every mutation.
func New(path string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{byName: make(map[string]int), path: path, log: log}
}

// Load reads the cache file at path, discarding it entirely if the version
// line is missing or mismatched. A missing file is not an error — it
// leaves the cache empty.
func Load(path string, log *zap.Logger) (*Cache, error) {
	c := New(path, log)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	first, err := r.Read()
	if err == io.EOF {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("cache: read version line: %w", err)
	}
	if len(first) != 2 || first[0] != "VERSION" {
		c.log.Warn("cache: missing version line, discarding")
		return New(path, log), nil
	}
	v, err := strconv.Atoi(first[1])
	if err != nil || v != version {
		c.log.Warn("cache: version mismatch, discarding", zap.String("found", first[1]))
		return New(path, log), nil
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.log.Warn("cache: skipping malformed record", zap.Error(err))
			continue
		}
		if len(rec) != 4 {
			continue
		}
		mtime, err1 := strconv.ParseUint(rec[1], 10, 32)
		length, err2 := strconv.ParseUint(rec[2], 10, 32)
		sysex, err3 := strconv.Atoi(rec[3])
		if err1 != nil || err2 != nil || err3 != nil {
			c.log.Warn("cache: skipping malformed record", zap.Strings("fields", rec))
			continue
		}
		c.appendOrUpdate(Entry{Name: rec[0], Mtime: uint32(mtime), LengthTicks: uint32(length), SysexCount: sysex})
	}
	return c, nil
}

// Lookup returns the cached entry for name if its stored mtime matches.
func (c *Cache) Lookup(name string, mtime uint32) (Entry, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	e := c.entries[idx]
	if e.Mtime != mtime {
		return Entry{}, false
	}
	return e, true
}

// Insert records a length-scan result and persists the cache. Updating an
// existing name keeps its original FIFO position; a genuinely new name is
// appended, evicting the oldest entry if Capacity is exceeded.
func (c *Cache) Insert(name string, mtime uint32, lengthTicks uint32, sysexCount int) error {
	c.appendOrUpdate(Entry{Name: name, Mtime: mtime, LengthTicks: lengthTicks, SysexCount: sysexCount})
	return c.persist()
}

func (c *Cache) appendOrUpdate(e Entry) {
	if idx, ok := c.byName[e.Name]; ok {
		c.entries[idx] = e
		return
	}
	if len(c.entries) >= Capacity {
		c.evictOldest()
	}
	c.entries = append(c.entries, e)
	c.byName[e.Name] = len(c.entries) - 1
}

func (c *Cache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}
	oldest := c.entries[0]
	c.entries = c.entries[1:]
	delete(c.byName, oldest.Name)
	for name, idx := range c.byName {
		c.byName[name] = idx - 1
	}
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) persist() error {
	if c.path == "" {
		return nil
	}
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", c.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"VERSION", strconv.Itoa(version)}); err != nil {
		return fmt.Errorf("cache: write version: %w", err)
	}
	for _, e := range c.entries {
		rec := []string{
			e.Name,
			strconv.FormatUint(uint64(e.Mtime), 10),
			strconv.FormatUint(uint64(e.LengthTicks), 10),
			strconv.Itoa(e.SysexCount),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("cache: write entry %s: %w", e.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("cache: flush: %w", err)
	}
	return nil
}
