// Package otel exports authcore metrics through OpenTelemetry observable
// instruments.
//
// The caller owns the MeterProvider and passes a Meter to [New]. The
// exporter never mutates engine state; it reads
// [authcore.Engine.MetricsSnapshot] inside the collection callback.
package otel
