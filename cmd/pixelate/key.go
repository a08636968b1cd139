package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/wallet"
)

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Local key management",
	}
	cmd.AddCommand(newKeyInitCmd(a), newKeyShowCmd(a), newKeyListCmd(a))
	return cmd
}

func newKeyInitCmd(a *app) *cobra.Command {
	var (
		name    string
		scheme  string
		seedHex string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a named key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("missing --name")
			}
			if err := wallet.CheckKeyName(name); err != nil {
				return fmt.Errorf("invalid --name: %w", err)
			}
			ks, err := a.keyStore()
			if err != nil {
				return fmt.Errorf("keys: %w", err)
			}

			var seed []byte
			if seedHex != "" {
				seed, err = wallet.ParseSeedHex(seedHex)
				if err != nil {
					return fmt.Errorf("invalid --seed-hex: %w", err)
				}
			} else {
				seed = make([]byte, wallet.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return fmt.Errorf("rand: %w", err)
				}
			}
			w, path, err := ks.Init(name, scheme, seed, force)
			if err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			fmt.Fprintf(a.out, "Created key: %s\n", w.Identity())
			fmt.Fprintf(a.out, "Stored at: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name (directory under the key store)")
	cmd.Flags().StringVar(&scheme, "scheme", wallet.SchemeEd25519, "signature scheme (ed25519|dilithium3)")
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "optional 32-byte seed as 64 hex chars (for reproducible demos)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

func newKeyShowCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the identity of a named key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("missing --name")
			}
			ks, err := a.keyStore()
			if err != nil {
				return fmt.Errorf("keys: %w", err)
			}
			w, err := ks.Load(name)
			if err != nil {
				return fmt.Errorf("load key: %w", err)
			}
			fmt.Fprintln(a.out, w.Identity())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func newKeyListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return fmt.Errorf("keys: %w", err)
			}
			entries, err := ks.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Scheme, e.Identity)
			}
			return tw.Flush()
		},
	}
}
