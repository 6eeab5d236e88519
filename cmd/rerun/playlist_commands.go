package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rerun/internal/api"
	"rerun/internal/ipc"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	playlistCmd := &cobra.Command{
		Use:   "playlist",
		Short: "Inspect and edit the channel playlist",
	}

	playlistCmd.AddCommand(newPlaylistShowCommand(ctx))
	playlistCmd.AddCommand(newPlaylistRemoveCommand(ctx))
	playlistCmd.AddCommand(newPlaylistReorderCommand(ctx))

	return playlistCmd
}

func newPlaylistShowCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current and upcoming segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Snapshot(limit)
				if err != nil {
					return fmt.Errorf("fetch playlist snapshot: %w", err)
				}
				writeSnapshot(cmd, resp.Snapshot)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", api.DefaultUpcomingLimit, "Number of upcoming segments to show")
	return cmd
}

func writeSnapshot(cmd *cobra.Command, snapshot api.Snapshot) {
	stdout := cmd.OutOrStdout()

	if snapshot.TotalSegments == 0 {
		fmt.Fprintln(stdout, "Playlist is empty")
		return
	}

	fmt.Fprintln(stdout, segmentTable(snapshot))
	fmt.Fprintf(stdout, "%d segments total, version %s\n",
		snapshot.TotalSegments, snapshot.Version.Format("2006-01-02 15:04:05.000"))
}

func newPlaylistRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <episode>...",
		Short: "Remove upcoming segments from the playlist",
		Long: strings.TrimSpace(`
Remove whole segments, each named by its episode path or episode key.
The edit is applied against the playlist version current at submission;
if the playlist changes underneath, the command reports the conflict and
leaves the file untouched.
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return submitPatch(cmd, client, nil, args)
			})
		},
	}
}

func newPlaylistReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <episode>...",
		Short: "Reorder upcoming segments",
		Long: strings.TrimSpace(`
Place the named segments, in argument order, ahead of the remaining
upcoming segments. Segments not named keep their relative order after
the reordered ones. Bumpers travel with their episode.
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return submitPatch(cmd, client, args, nil)
			})
		},
	}
}

func submitPatch(cmd *cobra.Command, client *ipc.Client, order, skip []string) error {
	snap, err := client.Snapshot(0)
	if err != nil {
		return fmt.Errorf("fetch playlist snapshot: %w", err)
	}

	resp, err := client.Patch(api.PatchRequest{
		Version:      snap.Snapshot.Version,
		DesiredOrder: order,
		Skip:         skip,
	})
	if err != nil {
		return fmt.Errorf("submit playlist edit: %w", err)
	}
	if resp.Conflict {
		return fmt.Errorf("playlist changed while editing, retry: %s", resp.Message)
	}
	if !resp.Applied {
		return fmt.Errorf("playlist edit rejected: %s", resp.Message)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Playlist updated, %d segments\n", resp.Snapshot.TotalSegments)
	return nil
}
