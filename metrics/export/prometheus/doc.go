// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Counters are grouped into authcore_*_total families split by a "result"
// label, for example authcore_login_total{result="rate_limited"}. The two
// latency histograms are authcore_authenticate_latency_seconds and
// authcore_login_latency_seconds.
//
// The exporter does not register anything globally; mount Handler where
// your scraper expects it.
package prometheus
