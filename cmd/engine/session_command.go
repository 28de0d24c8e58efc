package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jobharvest-engine/internal/secrets"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the feed session cookie stored in the OS keychain",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "set [cookie]",
		Short: "Store the session cookie (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var cookie string
			if len(args) == 1 {
				cookie = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no cookie on stdin")
				}
				cookie = line
			}
			acct := secrets.SessionAccount(cfg)
			if err := secrets.SetSessionCookie(acct, strings.TrimSpace(cookie)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session cookie stored for %s\n", acct)
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session cookie",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return secrets.DeleteSessionCookie(secrets.SessionAccount(cfg))
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report where the session cookie will be read from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case cfg.Feed.SessionCookie != "":
				fmt.Fprintln(out, "session cookie: from config file or JOBHARVEST_SESSION_COOKIE")
			default:
				if _, err := secrets.GetSessionCookie(secrets.SessionAccount(cfg)); err != nil {
					fmt.Fprintln(out, "session cookie: not set")
					return nil
				}
				fmt.Fprintf(out, "session cookie: keychain (%s)\n", secrets.SessionAccount(cfg))
			}
			return nil
		},
	})

	return sessionCmd
}
