package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/harrison/packrat/internal/archive"
	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/models"
	"github.com/harrison/packrat/internal/pipeline"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list <input>...",
		Aliases: []string{"ls", "l"},
		Short:   "Show what decompressing would produce, without writing",
		Long: `List decodes each input through its full chain and prints one line per
entry: mode, size, modification time and name. Nothing is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, input := range args {
				if len(args) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "%s:\n", input)
				}
				if err := listInput(cmd, input, out); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func listInput(cmd *cobra.Command, input string, out io.Writer) error {
	chain, base, err := format.Parse(input)
	if err != nil {
		return err
	}
	p, err := pipeline.Build(chain, models.Decode, pipeline.NewRegistry(0, 0))
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := pipeline.FileSource(f)
	if err != nil {
		return err
	}

	return p.Decode(cmd.Context(), src, func(e archive.Entry, r io.Reader) error {
		name := e.Name
		size := e.Size
		if name == "" {
			// Stream-only chains carry a single unnamed entry.
			name = base
			n, err := io.Copy(io.Discard, r)
			if err != nil {
				return err
			}
			size = n
		}
		if e.IsSymlink() {
			name += " -> " + e.LinkTarget
		}
		if e.HardLink != "" {
			name += " link to " + e.HardLink
		}
		fmt.Fprintf(out, "%s %10s %s %s\n", e.Mode, sizeColumn(e, size), timeColumn(e), name)
		return nil
	})
}

func sizeColumn(e archive.Entry, size int64) string {
	if e.IsDir {
		return "-"
	}
	return units.HumanSize(float64(size))
}

func timeColumn(e archive.Entry) string {
	if e.ModTime.IsZero() {
		return "                "
	}
	return e.ModTime.Local().Format("2006-01-02 15:04")
}
