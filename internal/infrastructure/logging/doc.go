// Package logging is Fleet Core's structured logging layer over log/slog.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Every record carries service and version fields so aggregated logs stay
// attributable. Domain packages consume this through their own small Logger
// interfaces, which *logging.Logger satisfies via the embedded slog.Logger.
//
// Device credentials, API keys and sealed blobs must never reach a log
// record, at any level. Log identifiers (device_id, employee_id), not
// payloads, when in doubt.
package logging
