package messages

// Filesystem helper messages.
const (
	FsutilOpenLockFmt    = "failed to open lock file %s: %w"
	FsutilLockFmt        = "failed to lock %s: %w"
	FsutilLockTimeoutFmt = "timed out waiting for lock after %s"
	FsutilCreateTempFmt  = "failed to create temp file for %s: %w"
	FsutilWriteTempFmt   = "failed to write temp file for %s: %w"
	FsutilSyncTempFmt    = "failed to sync temp file for %s: %w"
	FsutilCloseTempFmt   = "failed to close temp file for %s: %w"
	FsutilChmodTempFmt   = "failed to chmod temp file for %s: %w"
	FsutilRenameFmt      = "failed to replace %s: %w"
)

// Version ordering messages.
const (
	// VersionUnknownOrderFmt formats unknown resolve.order values.
	VersionUnknownOrderFmt = "unknown version order %q (expected lexical or semver)"
)
