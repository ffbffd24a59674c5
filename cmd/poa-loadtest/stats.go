package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/lucaaxano/poa-app-sub000/metrics/export/internaldefs"
)

// phaseReport summarizes one load phase. buckets uses the same bounds as
// the engine's authenticate latency histogram, with the final slot for
// samples above the last bound.
type phaseReport struct {
	name     string
	elapsed  time.Duration
	samples  int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	buckets  []int
}

func newPhaseReport(name string, elapsed time.Duration, latencies []time.Duration, failures int64) phaseReport {
	r := phaseReport{
		name:     name,
		elapsed:  elapsed,
		samples:  len(latencies),
		failures: failures,
		buckets:  make([]int, len(internaldefs.HistogramUpperBounds)+1),
	}
	if len(latencies) == 0 {
		return r
	}

	slices.Sort(latencies)
	r.p50 = nearestRank(latencies, 0.50)
	r.p95 = nearestRank(latencies, 0.95)
	r.p99 = nearestRank(latencies, 0.99)

	for _, d := range latencies {
		secs := d.Seconds()
		slot := len(internaldefs.HistogramUpperBounds)
		for i, bound := range internaldefs.HistogramUpperBounds {
			if secs <= bound {
				slot = i
				break
			}
		}
		r.buckets[slot]++
	}
	return r
}

// nearestRank returns the smallest sample covering fraction q of a sorted
// slice.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(q*float64(n) + 0.999999)
	rank = min(max(rank, 1), n)
	return sorted[rank-1]
}

func (r phaseReport) throughput() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.samples) / r.elapsed.Seconds()
}

func (r phaseReport) write(w io.Writer) {
	fmt.Fprintf(w, "%-12s n=%d failed=%d elapsed=%s rate=%.0f/s p50=%s p95=%s p99=%s\n",
		r.name, r.samples, r.failures,
		r.elapsed.Round(time.Millisecond), r.throughput(),
		r.p50.Round(time.Microsecond), r.p95.Round(time.Microsecond), r.p99.Round(time.Microsecond))

	if r.samples == 0 {
		return
	}
	parts := make([]string, 0, len(r.buckets))
	for i, n := range r.buckets {
		label := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			label = fmt.Sprintf("%gs", internaldefs.HistogramUpperBounds[i])
		}
		parts = append(parts, fmt.Sprintf("<=%s:%d", label, n))
	}
	fmt.Fprintf(w, "%-12s %s\n", "", strings.Join(parts, " "))
}
