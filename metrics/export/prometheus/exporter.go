package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

// Source is what the exporter reads. *authcore.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type Exporter struct {
	source Source
}

func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the text exposition format.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = e.Write(w)
	})
}

// Render returns the exposition text. It is empty when the engine has
// metrics disabled and nothing was dropped.
func (e *Exporter) Render() string {
	var b strings.Builder
	_ = e.Write(&b)
	return b.String()
}

func (e *Exporter) Write(w io.Writer) error {
	if e == nil || e.source == nil {
		return nil
	}

	snap := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	for _, fam := range internaldefs.Families {
		header(bw, fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			if s.Result == "" {
				fmt.Fprintf(bw, "%s %d\n", fam.Name, snap.Counters[s.ID])
				continue
			}
			fmt.Fprintf(bw, "%s{%s=%q} %d\n", fam.Name, internaldefs.ResultLabel, s.Result, snap.Counters[s.ID])
		}
	}

	for _, def := range internaldefs.Histograms {
		header(bw, def.Name, def.Help, "histogram")
		cum := internaldefs.Cumulative(snap.Histograms[def.ID])
		for i, le := range internaldefs.Bounds {
			fmt.Fprintf(bw, "%s_bucket{le=%q} %d\n", def.Name, le, cum[i])
		}
		fmt.Fprintf(bw, "%s_count %d\n", def.Name, cum[len(cum)-1])
		// The engine keeps bucket counts only.
		fmt.Fprintf(bw, "%s_sum 0\n", def.Name)
	}

	header(bw, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	fmt.Fprintf(bw, "%s %d\n", internaldefs.AuditDroppedName, dropped)

	return bw.Flush()
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, kind)
}
