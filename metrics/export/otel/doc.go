// Package otel provides OpenTelemetry metric exporter bindings for goQrLogin
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// goQrLogin metric and Int64ObservableGauge per histogram bucket. A single
// callback reads [goQrLogin.Engine.MetricsSnapshot] on each collection cycle.
//
// The package never owns the OTel MeterProvider; callers supply the Meter.
package otel
