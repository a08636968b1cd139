package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/pixelate"
	"pixelate.dev/pixelate/raster"
)

func newPreviewCmd(a *app) *cobra.Command {
	var (
		output    string
		blockSize int
		sampling  string
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Pixelate an image locally and write the PNG that would be uploaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.cfg.PixelationConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("block-size") {
				pc.BlockSize = blockSize
			}
			if cmd.Flags().Changed("sampling") {
				if pc.Sampling, err = pixelate.ParseSampling(sampling); err != nil {
					return err
				}
			}

			f, err := readFile(args[0], a.cfg.Decoder.MaxBytes)
			if err != nil {
				return err
			}
			src, err := raster.NewDecoder(a.cfg.DecoderOptions(), a.log).Decode(f)
			if err != nil {
				return err
			}
			img, err := pixelate.Pixelate(src, pc)
			if err != nil {
				return err
			}

			if output == "" {
				base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				output = base + "-pixelated.png"
			}
			if err := os.WriteFile(output, img.Bytes, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s (%dx%d, block %d, %s sampling)\n",
				output, img.Width, img.Height, pc.BlockSize, pc.Sampling)
			fmt.Fprintf(a.out, "CID: %s\n", cidutil.String(img.Bytes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG (default <name>-pixelated.png)")
	cmd.Flags().IntVar(&blockSize, "block-size", pixelate.DefaultBlockSize, "block edge in pixels")
	cmd.Flags().StringVar(&sampling, "sampling", pixelate.SampleOrigin.String(), "block colour: origin or average")
	return cmd
}
