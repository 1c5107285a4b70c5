package messages

// Registry client messages.
const (
	RegistryInvalidURLFmt        = "invalid registry url %q: %w"
	RegistryURLSchemeRequired    = "url must use http or https and include a host"
	RegistryCreateRequestFmt     = "failed to create request for %s: %w"
	RegistryTimeoutFmt           = "registry request to %s timed out: %w"
	RegistryRequestFailedFmt     = "registry request to %s failed: %w"
	RegistryUnexpectedStatusFmt  = "registry request to %s returned %s"
	RegistryDecodeVersionsFmt    = "failed to decode version list from %s: %w"
	RegistryTruncateDestFmt      = "failed to truncate download file: %w"
	RegistryResetDestFmt         = "failed to rewind download file: %w"
	RegistryDownloadFailedFmt    = "failed to download %s: %w"
	RegistryDownloadTooLargeFmt  = "archive at %s exceeds the %d byte download limit"
	RegistryRetryBudgetExhausted = "retry budget exhausted"
)

// Version resolution messages.
const (
	ResolverRegistryRequired = "no registry configured"
)
