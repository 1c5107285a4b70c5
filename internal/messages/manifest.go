package messages

// Manifest messages.
const (
	ManifestRecordLineFmt    = "%s-%s-%s"
	ManifestNameRequired     = "package name is required"
	ManifestVersionRequired  = "package version is required"
	ManifestRootRequired     = "install root is required"
	ManifestUnsafePathFmt    = "recorded path %q is not relative to the install root"
	ManifestDecodeContext    = "decode manifest"
	ManifestInvalidRecordFmt = "record %d: %v"
	ManifestEncodeFmt        = "failed to encode manifest: %w"
	ManifestReadFmt          = "failed to read manifest: %w"
	ManifestCreateDirFmt     = "failed to create manifest directory: %w"
	ManifestBackupFmt        = "failed to back up corrupt manifest: %w"
)
