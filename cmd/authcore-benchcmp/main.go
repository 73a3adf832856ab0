// Command authcore-benchcmp fails when a tracked benchmark got slower.
//
// It reads two `go test -bench` outputs (ideally with -count > 1), takes the
// median of every tracked metric and compares candidate against baseline:
//
//	go test -run '^$' -bench . -benchmem -count 5 . ./jwt > new.txt
//	authcore-benchcmp -baseline old.txt -candidate new.txt -threshold 0.25
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// tracked maps benchmark names, without the -GOMAXPROCS suffix, to the
// units that gate a change.
var tracked = map[string][]string{
	"BenchmarkAuthenticate": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":      {"ns/op", "allocs/op"},
	"BenchmarkLogin":        {"ns/op"},
	"BenchmarkVerifyAccess": {"ns/op", "allocs/op"},
}

// samples holds benchmark -> unit -> values.
type samples map[string]map[string][]float64

type comparison struct {
	benchmark string
	unit      string
	baseline  float64
	candidate float64
	delta     float64
}

var errRegression = errors.New("performance regression threshold exceeded")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errRegression) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("authcore-benchcmp", flag.ContinueOnError)
	fs.SetOutput(out)
	baselinePath := fs.String("baseline", "", "path to baseline benchmark output")
	candidatePath := fs.String("candidate", "", "path to candidate benchmark output")
	threshold := fs.Float64("threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *baselinePath == "" || *candidatePath == "" {
		return errors.New("-baseline and -candidate are required")
	}
	if *threshold < 0 {
		return errors.New("-threshold must be >= 0")
	}

	baseline, err := parseFile(*baselinePath)
	if err != nil {
		return fmt.Errorf("parse baseline: %w", err)
	}
	candidate, err := parseFile(*candidatePath)
	if err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}

	rows, problems := compare(baseline, candidate)

	fmt.Fprintln(out, "benchmark unit baseline candidate delta")
	for _, r := range rows {
		fmt.Fprintf(out, "%s %s %.3f %.3f %+0.2f%%\n", r.benchmark, r.unit, r.baseline, r.candidate, r.delta*100)
		if r.delta > *threshold {
			problems = append(problems, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", r.benchmark, r.unit, r.delta*100, *threshold*100))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", errRegression, strings.Join(problems, "\n  - "))
	}
	return nil
}

// compare returns one row per tracked metric present in both inputs, in a
// stable order, plus a problem line for every metric that could not be
// compared.
func compare(baseline, candidate samples) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		rows     []comparison
		problems []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			base := baseline[name][unit]
			cand := candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				problems = append(problems, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}
			b, c := median(base), median(cand)
			if b <= 0 {
				// allocs/op may legitimately be zero on both sides.
				if b == 0 && c == 0 {
					rows = append(rows, comparison{benchmark: name, unit: unit})
					continue
				}
				problems = append(problems, fmt.Sprintf("invalid baseline median for %s %s", name, unit))
				continue
			}
			rows = append(rows, comparison{
				benchmark: name,
				unit:      unit,
				baseline:  b,
				candidate: c,
				delta:     (c - b) / b,
			})
		}
	}
	return rows, problems
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, scanner.Err()
}

func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
