// ABOUTME: Commands that find and control players over the network
// ABOUTME: discover browses mDNS; remote sends one command over the event feed
package cli

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/streamplayer-go/internal/discovery"
	"github.com/Resonate-Protocol/streamplayer-go/internal/eventfeed"
	"github.com/spf13/cobra"
)

func (a *app) discoverCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for players serving an event feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := discovery.NewManager(discovery.Config{})
			defer mgr.Stop()

			players, err := mgr.Browse(timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(players) == 0 {
				fmt.Fprintln(out, "No players found")
				return nil
			}
			for _, p := range players {
				fmt.Fprintf(out, "%-30s %s%s\n", p.Name, p.Addr(), p.Path)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultBrowseTimeout, "how long to wait for answers")
	return cmd
}

func (a *app) remoteCommand() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "remote <addr> <command> [value]",
		Short: "Send a command to a player's event feed",
		Long: fmt.Sprintf(`Send a command to a player's event feed and print the result, then any
status events that arrive within --wait.

Commands: %s
Values are seconds for seek and seek_to, a linear factor for gain,
-1..1 for pan and balance, and on/off for mute.`, strings.Join(eventfeed.Commands(), ", ")),
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := parseCommand(args[1], args[2:])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait+5*time.Second)
			defer cancel()

			client, err := eventfeed.Dial(ctx, eventfeed.DialConfig{Addr: args[0]})
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Send(command); err != nil {
				return fmt.Errorf("failed to send command: %w", err)
			}
			return printUntilIdle(ctx, cmd, client, wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "how long to print status events after the result")
	return cmd
}

func parseCommand(name string, args []string) (eventfeed.Command, error) {
	cmd := eventfeed.Command{Command: name}
	if !slices.Contains(eventfeed.Commands(), name) {
		return cmd, fmt.Errorf("unknown command %q", name)
	}
	switch name {
	case eventfeed.CommandSeek, eventfeed.CommandSeekTo, eventfeed.CommandGain,
		eventfeed.CommandPan, eventfeed.CommandBalance:
		if len(args) != 1 {
			return cmd, fmt.Errorf("%s needs a value", name)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return cmd, fmt.Errorf("invalid value %q for %s", args[0], name)
		}
		cmd.Value = v
	case eventfeed.CommandMute:
		if len(args) != 1 {
			return cmd, fmt.Errorf("mute needs on or off")
		}
		switch args[0] {
		case "on", "true":
			cmd.Mute = true
		case "off", "false":
		default:
			return cmd, fmt.Errorf("mute needs on or off, got %q", args[0])
		}
	default:
		if len(args) != 0 {
			return cmd, fmt.Errorf("%s takes no value", name)
		}
	}
	return cmd, nil
}

// printUntilIdle prints the command result, then status events until wait
// passes without one
func printUntilIdle(ctx context.Context, cmd *cobra.Command, client *eventfeed.Client, wait time.Duration) error {
	out := cmd.OutOrStdout()
	var result *eventfeed.Result
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-client.Events():
			if !ok {
				return resultError(result)
			}
			switch msg.Type {
			case eventfeed.TypeResult:
				var res eventfeed.Result
				if err := msg.Decode(&res); err != nil {
					return err
				}
				result = &res
				if res.Error != "" {
					fmt.Fprintf(out, "%s: error: %s\n", res.Command, res.Error)
				} else {
					fmt.Fprintf(out, "%s: ok\n", res.Command)
				}
				timer.Reset(wait)
			case eventfeed.TypeStatus:
				var st eventfeed.Status
				if err := msg.Decode(&st); err != nil {
					return err
				}
				line := fmt.Sprintf("%s@%d", st.Status, st.Position)
				if st.Description != "" {
					line += " (" + st.Description + ")"
				}
				fmt.Fprintln(out, line)
				if result != nil {
					timer.Reset(wait)
				}
			}
		case <-timer.C:
			if result != nil {
				return resultError(result)
			}
			timer.Reset(wait)
		case <-ctx.Done():
			if result == nil {
				return fmt.Errorf("no result from player: %w", ctx.Err())
			}
			return resultError(result)
		}
	}
}

func resultError(res *eventfeed.Result) error {
	if res == nil {
		return fmt.Errorf("connection closed before a result arrived")
	}
	if res.Error != "" {
		return fmt.Errorf("%s failed: %s", res.Command, res.Error)
	}
	return nil
}
