package main

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/pipeline"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and administer the ledger account",
	}
	var yes bool
	cmd.PersistentFlags().BoolVarP(&yes, "yes", "y", false, "skip confirmation and signing prompts")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the account exists and how many images it holds",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) (err error) {
				owner, account, err := a.wallets()
				if err != nil {
					return err
				}
				s, _, closeFn, err := a.session(owner, account)
				if err != nil {
					return err
				}
				defer func() { err = closeWith(err, closeFn) }()

				status, err := s.AccountStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Account: %s\n", account.Identity())
				fmt.Fprintf(a.out, "Status: %s\n", status)
				if status == pipeline.AccountReady {
					fmt.Fprintf(a.out, "Images: %d\n", s.State().Count)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create the account with the owner key as its authority",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) (err error) {
				owner, account, err := a.wallets()
				if err != nil {
					return err
				}
				s, _, closeFn, err := a.session(a.approve(owner, yes), account)
				if err != nil {
					return err
				}
				defer func() { err = closeWith(err, closeFn) }()

				err = s.InitializeAccount(cmd.Context(), account)
				if errors.Is(err, pipeline.ErrAccountExists) {
					fmt.Fprintf(a.out, "Account %s already exists.\n", account.Identity().Short())
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Initialized account %s (authority %s)\n", account.Identity(), owner.Identity().Short())
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Remove every image from the account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) (err error) {
				owner, account, err := a.wallets()
				if err != nil {
					return err
				}
				if !yes && !a.confirm(fmt.Sprintf("Remove every image from %s?", account.Identity().Short())) {
					fmt.Fprintln(a.out, "Cancelled.")
					return nil
				}
				_, reg, closeFn, err := a.session(owner, account)
				if err != nil {
					return err
				}
				defer func() { err = closeWith(err, closeFn) }()

				rcpt, err := reg.Reset(cmd.Context(), string(account.Identity()), a.approve(owner, yes))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Reset. Tx: %s\n", rcpt.TxID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove CID",
			Short: "Remove the oldest record of CID from the account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) (err error) {
				id, err := cidutil.Parse(args[0])
				if err != nil {
					return err
				}
				owner, account, err := a.wallets()
				if err != nil {
					return err
				}
				_, reg, closeFn, err := a.session(owner, account)
				if err != nil {
					return err
				}
				defer func() { err = closeWith(err, closeFn) }()

				rcpt, err := reg.RemoveRecord(cmd.Context(), string(account.Identity()), id, a.approve(owner, yes))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Removed %s (%d left). Tx: %s\n", id, rcpt.Count, rcpt.TxID)
				return nil
			},
		},
	)
	return cmd
}

func closeWith(err error, closeFn func() error) error {
	if cerr := closeFn(); cerr != nil {
		return multierror.Append(err, cerr).ErrorOrNil()
	}
	return err
}
