package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/minidrive/drive"
)

// transferLimit caps concurrent uploads and downloads.
const transferLimit = 4

func newFilesCommand(a *app) *cobra.Command {
	return group("files", "Manage your files",
		newFilesListCommand(a),
		newFilesAllCommand(a),
		newFilesUploadCommand(a),
		newFilesDownloadCommand(a),
		newFilesRemoveCommand(a),
		newFilesShareCommand(a),
		newFilesLinkCommand(a),
		newFilesRenameCommand(a),
		newFilesChownCommand(a),
	)
}

func printFiles(w io.Writer, files []drive.FileItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED\tACCESS")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.ID, f.OriginalName, f.Size, f.UploadDate.Local().Format(time.DateTime), access(f))
	}
	return tw.Flush()
}

func access(f drive.FileItem) string {
	switch {
	case f.UserPermission != nil:
		return string(*f.UserPermission)
	case f.Owner != nil:
		return "owner " + f.Owner.Email
	default:
		return "owner"
	}
}

func newFilesListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List files you own and files shared with you",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			lists, err := a.client.Drive().ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Owned (%d)\n", len(lists.Owned))
			if err := printFiles(out, lists.Owned); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nShared with me (%d)\n", len(lists.Shared))
			return printFiles(out, lists.Shared)
		},
	}
}

func newFilesAllCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "List every file in the system (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			files, err := a.client.Drive().ListAllFiles(cmd.Context())
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), files)
		},
	}
}

func newFilesUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload one or more local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			uploaded := make([]drive.FileItem, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(transferLimit)
			for i, path := range args {
				g.Go(func() error {
					item, err := a.client.Drive().UploadFile(ctx, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					uploaded[i] = item
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), uploaded)
		},
	}
}

func newFilesDownloadCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <fileID>...",
		Short: "Download files into a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			saved := make([]string, len(args))
			dl := newDownloader(a.client.Drive(), dir)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(transferLimit)
			for i, id := range args {
				g.Go(func() error {
					path, err := dl.fetch(ctx, id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					saved[i] = path
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for i, path := range saved {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[i], path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Destination directory")
	return cmd
}

// downloader saves files into one directory. Names are claimed per batch,
// so two files the server names alike never overwrite each other.
type downloader struct {
	svc *drive.Service
	dir string

	mu      sync.Mutex
	claimed map[string]bool
}

func newDownloader(svc *drive.Service, dir string) *downloader {
	return &downloader{svc: svc, dir: dir, claimed: make(map[string]bool)}
}

// claim picks the local name for fileID: the server-supplied base name,
// the id when that name is unusable, and "<id>-<name>" when another file
// in the batch already took it.
func (d *downloader) claim(fileID, serverName string) string {
	name := filepath.Base(serverName)
	switch name {
	case "", ".", "..", string(filepath.Separator):
		name = fileID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed[name] {
		name = fileID + "-" + name
	}
	d.claimed[name] = true
	return filepath.Join(d.dir, name)
}

func (d *downloader) fetch(ctx context.Context, fileID string) (string, error) {
	dl, err := d.svc.Download(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	path := d.claim(fileID, dl.Filename)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, dl.Body); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func newFilesRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <fileID>",
		Aliases: []string{"delete"},
		Short:   "Delete a file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.client.Drive().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newFilesShareCommand(a *app) *cobra.Command {
	var perm string
	cmd := &cobra.Command{
		Use:   "share <fileID> <email>",
		Short: "Share a file with another user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateEmail(args[1]); err != nil {
				return err
			}
			p, err := drive.ParsePermission(perm)
			if err != nil {
				return err
			}
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.client.Drive().ShareByEmail(cmd.Context(), args[0], args[1], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shared %s with %s (%s)\n", args[0], args[1], p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&perm, "permission", "p", string(drive.PermissionView), "view or edit")
	return cmd
}

func newFilesLinkCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link <fileID>",
		Short: "Create a public link to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			link, err := a.client.Drive().GenerateLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.Link)
			return nil
		},
	}
}

func newFilesRenameCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <fileID> <name>",
		Short: "Change a file's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			name := args[1]
			f, err := a.client.Drive().UpdateMetadata(cmd.Context(), args[0], drive.MetadataUpdate{OriginalName: &name})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", f.ID, f.OriginalName)
			return nil
		},
	}
}

func newFilesChownCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chown <fileID> <userID>",
		Short: "Transfer a file to another user (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			owner := args[1]
			if _, err := a.client.Drive().UpdateMetadata(cmd.Context(), args[0], drive.MetadataUpdate{OwnerID: &owner}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now owned by %s\n", args[0], owner)
			return nil
		},
	}
}
