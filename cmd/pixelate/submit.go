package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/pipeline"
)

func newSubmitCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Pixelate, pin and register an image in the gallery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			owner, account, err := a.wallets()
			if err != nil {
				return err
			}
			s, _, closeFn, err := a.session(a.approve(owner, yes), account)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeFn(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			s.Observe(pipeline.ObserverFuncs{
				State: func(st pipeline.State) {
					a.log.Debug().Str("phase", st.Phase.String()).Uint64("count", st.Count).Msg("pipeline state")
				},
			})

			if err := requireAccount(ctx, s); err != nil {
				return err
			}
			f, err := readFile(args[0], a.cfg.Decoder.MaxBytes)
			if err != nil {
				return err
			}
			preview, err := s.Drop(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Preview: %dx%d, block %d\n", preview.Width, preview.Height, preview.Config.BlockSize)
			if !yes && !a.confirm(fmt.Sprintf("Upload %s and register it?", f.Name)) {
				if err := s.Cancel(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}

			out, err := s.Submit(ctx)
			if err != nil {
				return err
			}
			if out.Duplicate {
				fmt.Fprintln(a.out, "The pin service already had this image.")
			}
			fmt.Fprintf(a.out, "CID: %s\n", out.CID)
			fmt.Fprintf(a.out, "Registered as #%d (%d in gallery)\n", out.Receipt.Number, out.Receipt.Count)
			fmt.Fprintf(a.out, "Tx: %s\n", out.Receipt.TxID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation and signing prompts")
	return cmd
}
