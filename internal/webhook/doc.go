// Package webhook manages device event hosts and ingests their deliveries.
//
// The outbound half (Manager) pushes an event host onto a device so it
// reports access events to us, and tracks each registration with trigger
// counters. The inbound half (Processor) takes the raw deliveries and
// correlates them back to registered devices.
//
// Device identity is a matcher chain: the ingestion URL's path segment,
// then well-known payload fields across vendor formats, then the delivery's
// source IP against registered hosts. Identification failing is not fatal;
// the event is logged without a device.
//
// The ingestion endpoint always answers 200. Access terminals treat any
// other status as a transport failure and some firmware retries until the
// event buffer fills, so errors are reported inside the body instead.
package webhook
