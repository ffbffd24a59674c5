// Command poa-perfcheck compares two `go test -bench` outputs of the root
// package and fails when a gated benchmark regresses past its limit.
//
//	go test -run '^$' -bench . -benchmem -count 5 > new.txt
//	poa-perfcheck -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
)

// gate is one benchmark unit that must not regress. A zero limit means the
// -threshold flag applies.
type gate struct {
	benchmark string
	unit      string
	limit     float64
}

// gates covers the engine hot paths. The uncached path includes a store
// read and gets more slack; login is dominated by hash cost, so only its
// allocations are gated.
var gates = []gate{
	{benchmark: "BenchmarkAuthenticateCached", unit: "allocs/op"},
	{benchmark: "BenchmarkAuthenticateCached", unit: "ns/op"},
	{benchmark: "BenchmarkAuthenticateUncached", unit: "ns/op", limit: 0.50},
	{benchmark: "BenchmarkLogin", unit: "allocs/op"},
	{benchmark: "BenchmarkRefresh", unit: "allocs/op"},
	{benchmark: "BenchmarkRefresh", unit: "ns/op"},
}

func gated(benchmark string) bool {
	return slices.ContainsFunc(gates, func(g gate) bool { return g.benchmark == benchmark })
}

// sampleSet maps benchmark name to unit to every observed value.
type sampleSet map[string]map[string][]float64

func (s sampleSet) add(benchmark, unit string, v float64) {
	units, ok := s[benchmark]
	if !ok {
		units = map[string][]float64{}
		s[benchmark] = units
	}
	units[unit] = append(units[unit], v)
}

type comparison struct {
	gate
	baseline  float64
	candidate float64
	delta     float64
}

func main() {
	baselinePath := flag.String("baseline", "", "benchmark output of the reference build")
	candidatePath := flag.String("candidate", "", "benchmark output of the build under test")
	threshold := flag.Float64("threshold", 0.30, "default allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" || *threshold < 0 {
		fmt.Fprintln(os.Stderr, "usage: poa-perfcheck -baseline FILE -candidate FILE [-threshold RATIO>=0]")
		os.Exit(2)
	}

	baseline, err := parseBenchmarkFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(*candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(baseline, candidate, *threshold)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tUNIT\tBASELINE\tCANDIDATE\tDELTA")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%+.2f%%\n", r.benchmark, r.unit, r.baseline, r.candidate, r.delta*100)
	}
	_ = tw.Flush()

	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "regressions:")
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  %s\n", f)
	}
	os.Exit(1)
}

// compare evaluates every gate on the sample medians. A gate with no samples
// on either side fails.
func compare(baseline, candidate sampleSet, threshold float64) ([]comparison, []string) {
	var (
		rows     []comparison
		failures []string
	)
	for _, g := range gates {
		before, after := baseline[g.benchmark][g.unit], candidate[g.benchmark][g.unit]
		if len(before) == 0 || len(after) == 0 {
			failures = append(failures, fmt.Sprintf("missing samples for %s %s", g.benchmark, g.unit))
			continue
		}

		c := comparison{gate: g, baseline: median(before), candidate: median(after)}
		if c.baseline <= 0 {
			rows = append(rows, c)
			if c.candidate > 0 {
				failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.0f", g.benchmark, g.unit, c.candidate))
			}
			continue
		}

		c.delta = (c.candidate - c.baseline) / c.baseline
		rows = append(rows, c)
		limit := g.limit
		if limit == 0 {
			limit = threshold
		}
		if c.delta > limit {
			failures = append(failures, fmt.Sprintf("%s %s regressed by %+.2f%% (limit %+.2f%%)", g.benchmark, g.unit, c.delta*100, limit*100))
		}
	}
	return rows, failures
}

func parseBenchmarkFile(path string) (sampleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchmarks(f)
}

// parseBenchmarks reads result lines of the form
// "BenchmarkX-8  N  v1 unit1  v2 unit2 ..." and keeps gated benchmarks only.
func parseBenchmarks(r io.Reader) (sampleSet, error) {
	samples := sampleSet{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := normalizeBenchmarkName(fields[0])
		if !gated(name) {
			continue
		}
		for i := 2; i+1 < len(fields); i += 2 {
			if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
				samples.add(name, fields[i+1], v)
			}
		}
	}
	return samples, sc.Err()
}

// normalizeBenchmarkName strips the -GOMAXPROCS suffix.
func normalizeBenchmarkName(raw string) string {
	i := strings.LastIndexByte(raw, '-')
	if i <= 0 {
		return raw
	}
	if _, err := strconv.Atoi(raw[i+1:]); err != nil {
		return raw
	}
	return raw[:i]
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
