// Package nvram provides named-section access to a small word-addressed
// battery-backed register file (e.g. an RTC's general-purpose registers)
// that survives a reset, gated behind a table that is validated once at
// boot so a bad board configuration fails fast instead of silently
// aliasing two sections onto the same word.
package nvram

import (
	"sync"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

const logTag = "nvram"

// Store is the word-addressed backing register file. Offsets are word
// indices, not byte offsets; the concrete register layout (RTC GPREG,
// battery-backed SRAM, ...) is out of scope here.
type Store interface {
	ReadWord(offset int) uint32
	WriteWord(offset int, value uint32)
}

// Range is the inclusive-low, exclusive-high band of word offsets this
// board's Store actually exposes for NVRAM use; offsets outside it are
// typically reserved by other hardware (e.g. a timer driver's own GPREGs).
type Range struct {
	Low, High int
}

func (r Range) contains(offset int) bool { return offset >= r.Low && offset < r.High }

// info is a single named section: a word offset guarded by its own
// mutex so concurrent readers/writers of different sections never
// contend, while same-section access is serialized.
type info struct {
	offset int
	mu     sync.Mutex
}

// Table maps section indices to NVRAM word offsets. Build one with
// NewTable and call Validate before passing it to Open.
type Table struct {
	valid    Range
	sections []*info
}

// NewTable builds a Table of len(offsets) sections, one per entry, in
// the given order; index i addresses offsets[i].
func NewTable(valid Range, offsets []int) *Table {
	t := &Table{valid: valid, sections: make([]*info, len(offsets))}
	for i, off := range offsets {
		t.sections[i] = &info{offset: off}
	}
	return t
}

// Validate rejects any offset outside the Store's valid range and any
// duplicate offset across sections, so two configured sections can
// never silently alias the same backing word.
func (t *Table) Validate() error {
	seen := make(map[int]bool, len(t.sections))
	for i, s := range t.sections {
		if !t.valid.contains(s.offset) {
			return ecerr.Wrapf(logTag, ecerr.InvalidRegisterAddress, nil,
				"section %d: offset %d outside valid range [%d,%d)", i, s.offset, t.valid.Low, t.valid.High)
		}
		if seen[s.offset] {
			return ecerr.Wrapf(logTag, ecerr.InvalidRegisterAddress, nil,
				"section %d: offset %d duplicates an earlier section", i, s.offset)
		}
		seen[s.offset] = true
	}
	return nil
}

// Index returns the section index whose offset matches off, for
// callers that need to pass a stable key around rather than a raw
// offset. The second return is false if no section has that offset.
func (t *Table) Index(off int) (int, bool) {
	for i, s := range t.sections {
		if s.offset == off {
			return i, true
		}
	}
	return 0, false
}

// Len reports how many sections the table describes.
func (t *Table) Len() int { return len(t.sections) }

// Layout opens the table against store, returning the per-index
// ManagedSection handles callers actually read and write through.
// Validate must have already succeeded.
func (t *Table) Layout(store Store) []*ManagedSection {
	out := make([]*ManagedSection, len(t.sections))
	for i, s := range t.sections {
		out[i] = &ManagedSection{store: store, info: s}
	}
	return out
}

// ManagedSection is a guarded handle to one named NVRAM word.
type ManagedSection struct {
	store Store
	info  *info
}

// Read returns the section's current value.
func (m *ManagedSection) Read() uint32 {
	m.info.mu.Lock()
	defer m.info.mu.Unlock()
	return m.store.ReadWord(m.info.offset)
}

// Write stores value into the section.
func (m *ManagedSection) Write(value uint32) {
	m.info.mu.Lock()
	defer m.info.mu.Unlock()
	m.store.WriteWord(m.info.offset, value)
}

// Layout is the opened, ready-to-use form of a validated Table: a
// lookup from section index to its guarded handle.
type Layout struct {
	sections []*ManagedSection
}

// Open validates table and, on success, opens it against store.
func Open(table *Table, store Store) (*Layout, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Layout{sections: table.Layout(store)}, nil
}

// Section returns the ManagedSection at index, or an InvalidLocation
// error if index is out of range.
func (l *Layout) Section(index int) (*ManagedSection, error) {
	if index < 0 || index >= len(l.sections) {
		return nil, ecerr.Wrapf(logTag, ecerr.InvalidLocation, nil, "section index %d out of range", index)
	}
	return l.sections[index], nil
}
