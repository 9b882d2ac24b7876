// Package influxdb records Fleet Core's time-series metrics: device command
// latency, health probe results, webhook delivery volume and reconciliation
// summaries.
//
// The client wraps influxdb-client-go v2's non-blocking write API, so
// recording a point from a command or ingestion path never blocks on the
// network. Points are batched per config.yaml (batch_size, flush_interval)
// and write failures arrive asynchronously through SetOnError.
//
// Like MQTT, the whole package is optional: Connect returns ErrDisabled when
// the config turns metrics off, and every metrics consumer accepts a nil
// recorder.
package influxdb
