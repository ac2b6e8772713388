package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/linkdedup"
	"github.com/sells-group/storemap/internal/table"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Drop links that are a prefix of another link",
	Long: `Reads one link per line and writes the links that are not a strict
prefix of any other link, in input order. Store-group pages in the Aldi Süd
sitemap are prefixes of the store pages below them, so this keeps only the
store pages.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		inPath, _ := cmd.Flags().GetString("in")
		outPath, _ := cmd.Flags().GetString("out")

		in, err := openInput(inPath)
		if err != nil {
			return err
		}
		defer in.Close() //nolint:errcheck

		out, err := createOutput(outPath)
		if err != nil {
			return err
		}

		read, kept, err := runDedup(in, out)
		if err != nil {
			_ = out.Close()
			return err
		}
		zap.L().Info("dedup complete",
			zap.String("command", "dedup"),
			zap.Int("read", read),
			zap.Int("kept", kept),
		)
		return eris.Wrap(out.Close(), "dedup: close output")
	},
}

func init() {
	dedupCmd.Flags().String("in", stdio, "links file, one per line (- for stdin)")
	dedupCmd.Flags().String("out", stdio, "output file (- for stdout)")
	rootCmd.AddCommand(dedupCmd)
}

func runDedup(in io.Reader, out io.Writer) (read, kept int, err error) {
	links, err := table.ReadLines(in)
	if err != nil {
		return 0, 0, err
	}
	survivors := linkdedup.DropPrefixes(links)
	if err := table.WriteLines(out, survivors); err != nil {
		return 0, 0, err
	}
	return len(links), len(survivors), nil
}
