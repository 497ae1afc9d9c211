// Package prometheus provides Prometheus collectors for goQrLogin metrics.
//
// [NewPrometheusExporter] accepts a [goQrLogin.Engine] and exposes an
// [http.Handler] that renders all goQrLogin counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// goqrlogin_*_total; the single histogram is goqrlogin_poll_latency_seconds.
//
// The exporter never registers in a global Prometheus registry; callers mount
// the Handler themselves.
package prometheus
