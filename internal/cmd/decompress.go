package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/executor"
	"github.com/harrison/packrat/internal/models"
)

// NewDecompressCommand creates the decompress command
func NewDecompressCommand() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:     "decompress <input>...",
		Aliases: []string{"d", "x", "extract"},
		Short:   "Peel every layer off compressed files and archives",
		Long: `Decompress reads the layers from each input's name and undoes them all:
backup.tar.gz.zst goes through zstd, then gzip, then tar.

Each input is its own job. Archives unpack into a directory named after
the archive, so backup.tar.gz becomes <dest>/backup/.

A directory input is searched for decompressible files. Their outputs keep
the directory layout below <dest>/<directory name>/, or land next to each
file when the destination is the directory itself.`,
		Example: `  packrat decompress backup.tar.zst
  packrat decompress -d out/ a.zip b.tar.xz notes.txt.gz
  packrat decompress --no downloads/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, executor.Request{
				Direction: models.Decode,
				Inputs:    args,
				Output:    dest,
			})
		},
	}

	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Directory to extract into (default: current directory)")
	return cmd
}
