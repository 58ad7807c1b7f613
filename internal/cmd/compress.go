package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/executor"
	"github.com/harrison/packrat/internal/models"
)

// NewCompressCommand creates the compress command
func NewCompressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compress <input>... <output>",
		Aliases: []string{"c", "pack"},
		Short:   "Archive and compress inputs into one file",
		Long: `Compress writes every input into the output file. The output name picks
the format: site.tar.gz archives with tar and then gzips, notes.txt.xz
compresses a single file.

Several inputs, or a directory, need a container layer (tar or zip).`,
		Example: `  packrat compress src/ docs/ release.tar.zst
  packrat compress report.pdf report.pdf.xz
  packrat compress -j 4 photos/ photos.zip`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, executor.Request{
				Direction: models.Encode,
				Inputs:    args[:len(args)-1],
				Output:    args[len(args)-1],
			})
		},
	}
	return cmd
}
