package messages

// CLI messages for user-facing commands and prompts.
const (
	// RootUse is the CLI command name.
	RootUse   = "birdy"
	RootShort = "Install, list and remove registry packages"
	RootLong  = "birdy resolves package versions against a registry, unpacks their archives onto a filesystem root and keeps a manifest of every installed file so packages can be listed and removed cleanly."

	FlagConfig         = "config file (default $XDG_CONFIG_HOME/birdy/config.toml)"
	FlagManifest       = "manifest file path"
	FlagCacheDir       = "archive cache directory"
	FlagRegistry       = "registry base URL"
	FlagLogLevel       = "log level (trace, debug, info, warn, error)"
	FlagLogFormat      = "log format (console or json)"
	FlagVerbose        = "enable debug logging"
	FlagRecoverCorrupt = "treat an unreadable manifest as empty and back it up before rewriting"

	VersionCommitFmt = "commit %s"
	VersionBuildFmt  = "built %s"
	VersionFullFmt   = "%s (%s)"
	VersionTemplate  = "{{.Version}}\n"
	ErrorFmt         = "Error: %v"

	InstallUse         = "install <name> [version]"
	InstallShort       = "Install a package, the latest version unless one is given"
	InstallRootFlag    = "filesystem root to install into (default from config, usually /)"
	InstallStagedFlag  = "unpack into a staging directory and move into place only when the whole archive succeeded"
	InstallDoneFmt     = "Installed %s version %s into %s (%d files)\n"
	InstallCleanupWarn = "Warning: %v\n"

	RemoveUse               = "remove <name> [version]"
	RemoveShort             = "Remove an installed package, the latest published version unless one is given"
	RemoveConfirmFlag       = "list the files and ask before deleting them"
	RemoveIgnoreMissingFlag = "treat recorded files that are already gone as removed"
	RemoveDoneFmt           = "Removed %s version %s (%d paths)\n"
	RemoveMissingHeader     = "Recorded files that were already missing:"
	RemoveFilesHeaderFmt    = "%s version %s installed these files under %s:"
	RemoveConfirmPromptFmt  = "Delete %d files of %s version %s?"

	ListUse              = "list"
	ListShort            = "List installed packages"
	ListOutputFlag       = "output format: text, json or yaml"
	ListFilesFlag        = "also print each package's files"
	ListFileLineFmt      = "  %s\n"
	ListUnknownOutputFmt = "unknown output format %q (expected text, json or yaml)"
	ListRecoveredWarnFmt = "Warning: manifest %s is unreadable and was treated as empty: %v\n"
	ListEncodeFmt        = "failed to encode package list: %w"

	CacheUse        = "cache"
	CacheShort      = "Inspect or clear the archive cache"
	CachePathUse    = "path"
	CachePathShort  = "Print the archive cache directory"
	CacheCleanUse   = "clean"
	CacheCleanShort = "Delete every cached archive"
	CacheCleanedFmt = "Removed %d cached archives from %s\n"

	MetricsWriteWarn   = "failed to write metrics textfile"
	ConfigLoadFmt      = "load config: %w"
	HintRecoverCorrupt = "Hint: rerun with --recover-corrupt to treat the manifest as empty; the unreadable file is backed up first."
	HintIgnoreMissing  = "Hint: rerun with --ignore-missing to skip recorded files that are already gone."

	PromptYesDefaultFmt   = "%s [Y/n]: "
	PromptNoDefaultFmt    = "%s [y/N]: "
	PromptRetryYesNo      = "Please answer y or n."
	PromptInvalidResponse = "invalid response %q"
	PromptLineFmt         = "  - %s\n"
)
