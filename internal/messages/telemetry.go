package messages

// Logging and metrics messages.
const (
	TelemetryUnknownLogLevelFmt  = "unknown log level %q"
	TelemetryUnknownLogFormatFmt = "unknown log format %q (expected console or json)"
	TelemetryWriteTextfileFmt    = "failed to write metrics textfile %s: %w"
)
