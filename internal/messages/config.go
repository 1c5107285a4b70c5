package messages

// Config messages for configuration loading and validation.
const (
	ConfigMissingFileFmt      = "missing config file %s: %w"
	ConfigInvalidConfigFmt    = "invalid config %s: %w"
	ConfigUnrecognizedKeysFmt = "config %s contains unrecognized keys: %w"
	ConfigInvalidDurationFmt  = "invalid duration %q: %w"
	ConfigDurationPositiveFmt = "%s must be a positive duration"
	ConfigFieldInvalidFmt     = "%s failed %q %s"
	ConfigUserDirFmt          = "failed to locate user config directory: %w"
	ConfigExpandPathFmt       = "failed to expand path %q: %w"
)
