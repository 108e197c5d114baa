package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestCache_LookupMiss(t *testing.T) {
	c := New("", nil)
	if _, ok := c.Lookup("song.mid", 12345); ok {
		t.Fatalf("expected miss on empty cache")
	}
}

func TestCache_InsertLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(filepath.Join(dir, "cache.csv"), nil)

	if err := c.Insert("song.mid", 100, 9600, 3); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	e, ok := c.Lookup("song.mid", 100)
	if !ok {
		t.Fatalf("expected hit after insert")
	}
	if e.LengthTicks != 9600 || e.SysexCount != 3 {
		t.Fatalf("entry = %+v, want lengthTicks=9600 sysexCount=3", e)
	}
}

func TestCache_MtimeChangeInvalidates(t *testing.T) {
	c := New("", nil)
	_ = c.Insert("song.mid", 100, 9600, 3)
	if _, ok := c.Lookup("song.mid", 101); ok {
		t.Fatalf("expected miss after mtime change")
	}
}

func TestCache_UpdateKeepsPosition(t *testing.T) {
	c := New("", nil)
	_ = c.Insert("a.mid", 1, 10, 0)
	_ = c.Insert("b.mid", 1, 20, 0)
	_ = c.Insert("a.mid", 2, 99, 1) // update, not a new FIFO entry

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	e, ok := c.Lookup("a.mid", 2)
	if !ok || e.LengthTicks != 99 {
		t.Fatalf("updated entry = %+v ok=%v", e, ok)
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	c := New("", nil)
	for i := 0; i < Capacity; i++ {
		name := filepath.Join("track", string(rune('a'+i%26)), strconv.Itoa(i))
		_ = c.Insert(name, uint32(i), uint32(i), 0)
	}
	if c.Len() != Capacity {
		t.Fatalf("Len = %d, want %d", c.Len(), Capacity)
	}
	firstName := filepath.Join("track", string(rune('a'+0)), strconv.Itoa(0))

	_ = c.Insert("overflow.mid", 0, 0, 0)
	if c.Len() != Capacity {
		t.Fatalf("Len after overflow = %d, want %d", c.Len(), Capacity)
	}
	if _, ok := c.Lookup(firstName, 0); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := c.Lookup("overflow.mid", 0); !ok {
		t.Fatalf("expected newly inserted entry present")
	}
}

func TestCache_VersionMismatchDiscardsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.csv")
	if err := os.WriteFile(path, []byte("VERSION,999\nsong.mid,1,2,3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected discarded cache on version mismatch, got %d entries", c.Len())
	}
}

func TestCache_LoadRoundTripsThroughFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.csv")

	c := New(path, nil)
	_ = c.Insert("song.mid", 42, 1000, 5)

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := loaded.Lookup("song.mid", 42)
	if !ok || e.LengthTicks != 1000 || e.SysexCount != 5 {
		t.Fatalf("loaded entry = %+v ok=%v", e, ok)
	}
}
