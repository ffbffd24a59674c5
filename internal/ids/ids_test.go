package ids

import (
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewIsSortableAndParses(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got []string
	for i := 0; i < 32; i++ {
		got = append(got, At(base))
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("ids minted in one millisecond must sort in mint order")
	}
	id, err := ulid.Parse(got[0])
	if err != nil {
		t.Fatalf("ulid.Parse: %v", err)
	}
	if ulid.Time(id.Time()).UnixMilli() != base.UnixMilli() {
		t.Fatalf("timestamp mismatch")
	}
	if New() == New() {
		t.Fatalf("expected distinct ids")
	}
}
