package messages

// Transaction messages.
const (
	TxnStageErrorFmt     = "%s %s failed at %s: %v"
	TxnResolverRequired  = "no version resolver configured"
	TxnFetcherRequired   = "no archive fetcher configured"
	TxnExtractorRequired = "no archive extractor configured"
	TxnManifestRequired  = "no manifest store configured"
	TxnInstallRootFmt    = "invalid install root %q: %w"
	TxnDeclined          = "removal declined"
	TxnRemoveFileFmt     = "failed to remove %s: %w"
	TxnRecordedPathFmt   = "recorded path %s: %w"
	TxnManifestChanged   = "installed files changed while awaiting confirmation"
)
