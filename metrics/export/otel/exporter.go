package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads. *authcore.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type counterFamily struct {
	instrument metric.Int64ObservableCounter
	series     []internaldefs.Series
	attrs      []metric.ObserveOption
}

type histogramGauges struct {
	id      authcore.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as OTel observable instruments. Each
// counter family becomes one counter with a "result" attribute; each
// latency histogram becomes a cumulative bucket gauge keyed by "le" plus a
// count gauge.
type Exporter struct {
	source       Source
	registration metric.Registration
	families     []counterFamily
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter
}

// New registers the instruments on meter and a single callback that reads
// source on every collection.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, fam := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", fam.Name, err)
		}
		cf := counterFamily{instrument: ins, series: fam.Series}
		for _, s := range fam.Series {
			var opt metric.ObserveOption
			if s.Result != "" {
				opt = metric.WithAttributes(attribute.String(internaldefs.ResultLabel, s.Result))
			}
			cf.attrs = append(cf.attrs, opt)
		}
		e.families = append(e.families, cf)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.Histograms {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative bucket counts."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramGauges{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, fam := range e.families {
		for i, s := range fam.series {
			v := int64(snap.Counters[s.ID])
			if fam.attrs[i] == nil {
				o.ObserveInt64(fam.instrument, v)
				continue
			}
			o.ObserveInt64(fam.instrument, v, fam.attrs[i])
		}
	}

	for _, h := range e.histograms {
		cum := internaldefs.Cumulative(snap.Histograms[h.id])
		for i, le := range internaldefs.Bounds {
			o.ObserveInt64(h.buckets, int64(cum[i]), metric.WithAttributes(attribute.String("le", le)))
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
