// Package metrics aggregates trigger call outcomes.
//
// [Collector] keeps counts and an HDR latency histogram for the end-of-run
// report. [Exporter] publishes the same observations, plus run progress, in
// the Prometheus text format:
//
//	collector := metrics.NewCollector()
//	exporter := metrics.NewExporter()
//	recorder := metrics.Recorders{collector, exporter}
//	recorder.RecordRequest(latency, 200, true, "")
//	stats := collector.Stats(elapsed)
//
// Both are safe for concurrent use.
package metrics
