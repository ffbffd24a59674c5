package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsUniqueAndSuffixed(t *testing.T) {
	names := map[string]bool{}
	ids := map[uint16]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "poa_auth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] || ids[uint16(def.ID)] {
			t.Fatalf("duplicate counter %q", def.Name)
		}
		names[def.Name] = true
		ids[uint16(def.ID)] = true
	}
	if names[AuditDroppedName] {
		t.Fatal("audit dropped name collides with an engine counter")
	}
}

func TestBucketHelpers(t *testing.T) {
	raw := NormalizeBuckets([]uint64{1, 2, 3})
	if raw != [8]uint64{1, 2, 3, 0, 0, 0, 0, 0} {
		t.Fatalf("unexpected normalized buckets %v", raw)
	}
	cum := CumulativeBuckets(raw)
	if cum[7] != 6 || cum[1] != 3 {
		t.Fatalf("unexpected cumulative buckets %v", cum)
	}
	if len(HistogramBoundSuffix) != len(HistogramUpperBounds)+1 {
		t.Fatal("suffixes must cover every bound plus +Inf")
	}
	if got := ApproxSum([8]uint64{0, 0, 0, 0, 0, 0, 0, 2}); got != 1.0 {
		t.Fatalf("expected +Inf bucket counted at last bound, got %v", got)
	}
}
