package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-aligner/internal/export"
)

func newExportCommand() *cobra.Command {
	var outDir string
	var title string
	var fps float64
	var s3Key string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Align a document and write the segments as an EDL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return fmt.Errorf("--out is required")
			}
			if fps <= 0 || fps > 120 {
				return fmt.Errorf("fps must be between 0 and 120, got %g", fps)
			}

			res, err := processFile(cmd, args[0], s3Key)
			if err != nil {
				return err
			}

			if title == "" && args[0] != "-" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			path, err := export.WriteEDL(outDir, title, res.Output.Segments, fps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d segments to %s\n", len(res.Output.Segments), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the EDL into")
	cmd.Flags().StringVar(&title, "title", "", "EDL title (default: input file name)")
	cmd.Flags().Float64Var(&fps, "fps", export.DefaultFrameRate, "Timeline frame rate")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "Override the storage key of the source video")
	return cmd
}
