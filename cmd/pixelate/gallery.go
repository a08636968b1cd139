package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/pinning"
	"pixelate.dev/pixelate/storage/bundle"
)

// readGallery returns the account's records, most recent first, and its
// live record count.
func (a *app) readGallery(cmd *cobra.Command) (records []ledger.Record, count uint64, err error) {
	owner, account, err := a.wallets()
	if err != nil {
		return nil, 0, err
	}
	s, _, closeFn, err := a.session(owner, account)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	if err := requireAccount(cmd.Context(), s); err != nil {
		return nil, 0, err
	}
	st := s.State()
	return st.Gallery, st.Count, nil
}

func newGalleryCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List the registered images, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, count, err := a.readGallery(cmd)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Count   uint64          `json:"count"`
					Records []ledger.Record `json:"records"`
				}{count, records})
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, "The gallery is empty.")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tCID\tOWNER")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Number, r.CID, r.Owner.Short())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(newGalleryExportCmd(a))
	return cmd
}

func newGalleryExportCmd(a *app) *cobra.Command {
	var (
		output  string
		gateway string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every gallery image into a deterministic tar bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if output == "" {
				return errors.New("missing --output")
			}
			records, _, err := a.readGallery(cmd)
			if err != nil {
				return err
			}
			if gateway == "" {
				gateway = a.cfg.Pin.Gateway
			}
			if gateway == "" {
				gateway = a.cfg.Pin.Endpoint
			}

			items := make([]bundle.Item, 0, len(records))
			for _, r := range records {
				items = append(items, bundle.Item{Number: r.Number, CID: r.CID, Owner: string(r.Owner)})
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := bundle.Export(cmd.Context(), f, pinning.NewGateway(gateway, nil), items); err != nil {
				_ = f.Close()
				_ = os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %d images to %s\n", len(items), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle file to write")
	cmd.Flags().StringVar(&gateway, "gateway", "", "gateway base URL (default pin.gateway, then pin.endpoint)")
	return cmd
}
