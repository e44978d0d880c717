package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"winecellar/internal/session"
)

func newPINCommand(ctx *commandContext) *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the session PIN",
	}
	pinCmd.AddCommand(newPINSetCommand(ctx))
	pinCmd.AddCommand(newPINVerifyCommand(ctx))
	return pinCmd
}

func newPINSetCommand(ctx *commandContext) *cobra.Command {
	var newPIN string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Enroll a PIN, or change it after verifying the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			gate := session.NewGate(cfg.PINPath())

			next := newPIN
			if next == "" {
				var err error
				if next, err = session.ReadPIN(os.Stdin, cmd.ErrOrStderr(), "New PIN: "); err != nil {
					return err
				}
			}

			if !gate.Enrolled() {
				if _, err := gate.Authenticate(next); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "PIN enrolled")
				return nil
			}

			current, err := ctx.readPIN(cmd, "Current PIN: ")
			if err != nil {
				return err
			}
			if err := gate.Change(current, next); err != nil {
				if errors.Is(err, session.ErrInvalidPIN) {
					return errors.New("current PIN is incorrect")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN changed")
			return nil
		},
	}

	cmd.Flags().StringVar(&newPIN, "new", "", "New PIN (prompted when omitted)")
	return cmd
}

func newPINVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check a PIN against the enrolled one",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate := session.NewGate(ctx.configValue().PINPath())
			if !gate.Enrolled() {
				return errors.New("no PIN enrolled; run `winecellar pin set`")
			}
			pin, err := ctx.readPIN(cmd, "PIN: ")
			if err != nil {
				return err
			}
			if _, err := gate.Authenticate(pin); err != nil {
				if errors.Is(err, session.ErrInvalidPIN) {
					return errors.New("incorrect PIN")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN verified")
			return nil
		},
	}
}
