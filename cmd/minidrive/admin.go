package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/minidrive/drive"
)

func newPublicCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "public <token>",
		Short: "Show the file behind a public link token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.client.Drive().PublicFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), []drive.FileItem{f})
		},
	}
}

func newRequestAccessCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request-access <fileID>",
		Short: "Ask an administrator for access to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.client.Drive().RequestAccess(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "access requested")
			return nil
		},
	}
}

func newAdminCommand(a *app) *cobra.Command {
	return group("admin", "Administrator operations",
		&cobra.Command{
			Use:   "users",
			Short: "List all accounts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireSession(); err != nil {
					return err
				}
				users, err := a.client.Drive().Users(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tEMAIL\tROLE")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Email, u.Role)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "user-files <userID>",
			Short: "List one user's files",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireSession(); err != nil {
					return err
				}
				files, err := a.client.Drive().UserFiles(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printFiles(cmd.OutOrStdout(), files)
			},
		},
		&cobra.Command{
			Use:   "promote <userID>",
			Short: "Grant a user the admin role",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireSession(); err != nil {
					return err
				}
				u, err := a.client.PromoteAndRefresh(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Email, u.Role)
				return nil
			},
		},
		&cobra.Command{
			Use:   "requests",
			Short: "List access requests",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requireSession(); err != nil {
					return err
				}
				reqs, err := a.client.Drive().AccessRequests(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILE\tUSER\tSTATUS")
				for _, r := range reqs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.FileID, r.UserID, r.Status)
				}
				return tw.Flush()
			},
		},
		newApproveCommand(a),
	)
}

func newApproveCommand(a *app) *cobra.Command {
	var perm string
	cmd := &cobra.Command{
		Use:   "approve <requestID>",
		Short: "Approve an access request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := drive.ParsePermission(perm)
			if err != nil {
				return err
			}
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.client.Drive().ApproveAccess(cmd.Context(), args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s (%s)\n", args[0], p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&perm, "permission", "p", string(drive.PermissionView), "view or edit")
	return cmd
}
