package nvram

import (
	"testing"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

type fakeStore struct {
	words map[int]uint32
}

func newFakeStore() *fakeStore { return &fakeStore{words: make(map[int]uint32)} }

func (f *fakeStore) ReadWord(offset int) uint32  { return f.words[offset] }
func (f *fakeStore) WriteWord(offset int, v uint32) { f.words[offset] = v }

func TestValidateRejectsOffsetOutsideValidRange(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 4, 9})

	err := table.Validate()
	if !ecerr.Is(err, ecerr.InvalidRegisterAddress) {
		t.Fatalf("err = %v, want InvalidRegisterAddress", err)
	}
}

func TestValidateRejectsDuplicateOffset(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 4, 4})

	err := table.Validate()
	if !ecerr.Is(err, ecerr.InvalidRegisterAddress) {
		t.Fatalf("err = %v, want InvalidRegisterAddress", err)
	}
}

func TestValidateAcceptsDistinctInRangeOffsets(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 4, 5, 6, 7})

	if err := table.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOpenRejectsInvalidTableBeforeTouchingStore(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 100})
	store := newFakeStore()

	if _, err := Open(table, store); !ecerr.Is(err, ecerr.InvalidRegisterAddress) {
		t.Fatalf("err = %v, want InvalidRegisterAddress", err)
	}
}

func TestSectionReadWriteRoundTrips(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 5})
	store := newFakeStore()

	layout, err := Open(table, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sec, err := layout.Section(1)
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	sec.Write(0xDEADBEEF)
	if got := sec.Read(); got != 0xDEADBEEF {
		t.Fatalf("Read = %#x, want 0xDEADBEEF", got)
	}

	other, _ := layout.Section(0)
	if other.Read() != 0 {
		t.Fatalf("section 0 should be untouched, got %#x", other.Read())
	}
}

func TestSectionOutOfRangeIndexIsInvalidLocation(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 4})
	layout, err := Open(table, newFakeStore())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := layout.Section(5); !ecerr.Is(err, ecerr.InvalidLocation) {
		t.Fatalf("err = %v, want InvalidLocation", err)
	}
}

func TestIndexLooksUpSectionByOffset(t *testing.T) {
	table := NewTable(Range{Low: 3, High: 8}, []int{3, 4, 5})

	idx, ok := table.Index(4)
	if !ok || idx != 1 {
		t.Fatalf("Index(4) = (%d, %v), want (1, true)", idx, ok)
	}

	if _, ok := table.Index(100); ok {
		t.Fatalf("Index(100) should report not-found")
	}
}
