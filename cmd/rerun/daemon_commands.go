package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rerun/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and playback status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return fmt.Errorf("query status: %w", err)
				}
				writeStatus(cmd, status)
				return nil
			})
		},
	}
}

func writeStatus(cmd *cobra.Command, status *ipc.StatusResponse) {
	stdout := cmd.OutOrStdout()
	colorize := colorEnabled(stdout)

	runningTone := toneBad
	if status.Running {
		runningTone = toneGood
	}
	lines := []string{
		sectionTitle("Daemon", colorize),
		fieldLine("Running", yesNo(status.Running), runningTone, colorize),
		fieldLine("PID", strconv.Itoa(status.PID), toneNeutral, colorize),
		fieldLine("Playlist", status.PlaylistPath, toneNeutral, colorize),
		"",
		sectionTitle("Playback", colorize),
		fieldLine("State", status.State, stateTone(status.State), colorize),
	}
	if status.CurrentEntry != "" {
		lines = append(lines, fieldLine("Now playing", status.CurrentEntry, toneNeutral, colorize))
	}
	lines = append(lines,
		fieldLine("Segment",
			fmt.Sprintf("%d of %d", status.CurrentIndex+1, status.SegmentCount), toneNeutral, colorize),
		fieldLine("Pending blocks", strconv.Itoa(status.PendingBlocks), toneNeutral, colorize),
	)
	if strings.TrimSpace(status.LastError) != "" {
		lines = append(lines, fieldLine("Last error", status.LastError, toneBad, colorize))
	}

	if len(status.Dependencies) > 0 {
		lines = append(lines, "", sectionTitle("Dependencies", colorize))
		for _, dep := range status.Dependencies {
			depTone := toneGood
			value := dep.Command
			if !dep.Available {
				depTone = toneBad
				if dep.Optional {
					depTone = toneWarn
				}
				value = dep.Command + " (not found)"
			}
			lines = append(lines, fieldLine(dep.Name, value, depTone, colorize))
		}
	}

	fmt.Fprintln(stdout, strings.Join(lines, "\n"))
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the rerun daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return fmt.Errorf("stop daemon: %w", err)
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				}
				return nil
			})
		},
	}
}

func newSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the entry playing right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Skip()
				if err != nil {
					return fmt.Errorf("skip current entry: %w", err)
				}
				stdout := cmd.OutOrStdout()
				if !resp.Skipped {
					fmt.Fprintln(stdout, "Nothing is playing")
					return nil
				}
				fmt.Fprintln(stdout, "Skip requested")
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return fmt.Errorf("send test notification: %w", err)
				}
				if !resp.Sent {
					return fmt.Errorf("test notification failed: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}
