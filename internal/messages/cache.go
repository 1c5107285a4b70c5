package messages

// Archive cache messages.
const (
	CacheEmptyComponentFmt   = "package %s is required"
	CacheInvalidComponentFmt = "package %s %q must be a single path element"
	CacheSourceRequired      = "no archive source configured"
	CacheCheckArchiveFmt     = "failed to check cached archive %s: %w"
	CacheCreateDirFmt        = "failed to create cache directory: %w"
	CacheCreateTempFmt       = "failed to create temp file in cache: %w"
	CacheSyncTempFmt         = "failed to sync downloaded archive: %w"
	CacheCloseTempFmt        = "failed to close downloaded archive: %w"
	CacheMoveArchiveFmt      = "failed to move downloaded archive into the cache: %w"
	CacheEvictFmt            = "failed to remove cached archive %s: %w"
	CacheReadDirFmt          = "failed to read cache directory %s: %w"
	CacheDownloadingFmt      = "Downloading %s version %s\n"
)
