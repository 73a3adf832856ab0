package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderFamiliesAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:     7,
				authcore.MetricLoginRateLimited: 2,
				authcore.MetricLogout:           4,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE authcore_login_total counter\n",
		`authcore_login_total{result="success"} 7`,
		`authcore_login_total{result="rate_limited"} 2`,
		`authcore_login_total{result="failure"} 0`,
		"authcore_logout_total 4\n",
		`authcore_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_authenticate_latency_seconds_bucket{le="0.025"} 6`,
		`authcore_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_authenticate_latency_seconds_count 36\n",
		`authcore_login_latency_seconds_bucket{le="+Inf"} 0`,
		"authcore_audit_dropped_total 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}

	if strings.Count(out, "# HELP authcore_login_total ") != 1 {
		t.Fatal("a family must have exactly one HELP line")
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	cfg := authcore.MetricsConfig{Enabled: true}
	m := authcore.NewMetrics(cfg)
	m.Inc(authcore.MetricRegisterDuplicate)

	exp := New(metricsSource{m})
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil).WithContext(context.Background()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `authcore_register_total{result="duplicate"} 1`) {
		t.Fatalf("expected duplicate registration in body:\n%s", rec.Body.String())
	}
}

type metricsSource struct{ m *authcore.Metrics }

func (s metricsSource) MetricsSnapshot() authcore.MetricsSnapshot { return s.m.Snapshot() }
func (s metricsSource) AuditDropped() uint64                      { return 0 }

func TestEscapeHelp(t *testing.T) {
	var b strings.Builder
	header(&b, "x_total", "line one\nback\\slash", "counter")
	if !strings.Contains(b.String(), `# HELP x_total line one\nback\\slash`) {
		t.Fatalf("unexpected header %q", b.String())
	}
}
