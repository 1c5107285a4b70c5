package messages

// Archive extraction messages.
const (
	ArchiveRootRequired        = "install root is required"
	ArchiveCreateRootFmt       = "failed to create install root: %w"
	ArchiveCreateStagingFmt    = "failed to create staging directory: %w"
	ArchiveOpenFmt             = "failed to open archive: %w"
	ArchiveCorruptFmt          = "corrupt archive: %w"
	ArchiveResolveFmt          = "failed to resolve %s: %w"
	ArchiveUnsafePathFmt       = "entry %q resolves outside the install root"
	ArchiveUnsafeLinkFmt       = "link %s -> %q resolves outside the install root"
	ArchiveUnsupportedEntryFmt = "entry %q has unsupported type %q"
	ArchiveCreateDirFmt        = "failed to create directory %s: %w"
	ArchiveNotDirFmt           = "%s exists and is not a directory"
	ArchiveStatFmt             = "failed to stat %s: %w"
	ArchiveReplaceDirFmt       = "cannot replace directory %s with a file"
	ArchiveReplaceFmt          = "failed to replace %s: %w"
	ArchiveWriteFileFmt        = "failed to write %s: %w"
	ArchiveEntryTooLargeFmt    = "entry %q exceeds the %d byte size limit"
	ArchiveSymlinkFmt          = "failed to create symlink %s: %w"
	ArchiveHardlinkFmt         = "failed to create hard link %s: %w"
	ArchivePromoteFmt          = "failed to move staged entry %s into place: %w"
)
