package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for packrat
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packrat",
		Short: "Compress, archive and extract files by their extensions",
		Long: `Packrat infers what to do from file extensions. Every extension in a name
like backup.tar.zst is one layer: decompress peels the layers off, compress
wraps them on.

Independent inputs run as parallel jobs. One failing job never stops
the others, and every file is written atomically.`,
		Version: Version,
		// main prints the error; usage would bury job failures
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: $PACKRAT_HOME/config.yaml)")
	flags.IntP("jobs", "j", -1, "Number of jobs run at once (0 = one per CPU, -1 = use config)")
	flags.BoolP("yes", "y", false, "Overwrite existing files without asking")
	flags.BoolP("no", "n", false, "Never overwrite existing files")
	flags.String("overwrite-policy", "", "Existing destinations: ask, overwrite, skip, rename, abort")
	flags.Bool("follow-symlinks", false, "Archive link targets instead of links")
	flags.String("log-level", "", "Console log level: trace, debug, info, warn, error")
	flags.BoolP("quiet", "q", false, "Only print errors")
	cmd.MarkFlagsMutuallyExclusive("yes", "no", "overwrite-policy")

	cmd.AddCommand(NewCompressCommand())
	cmd.AddCommand(NewDecompressCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
