// Command poolctl manages the call number pool from the operator's shell.
//
// It reads the same environment variables the gateway does, so pointing it
// at the live pool is a matter of running it with the gateway's env file:
//
//	poolctl status
//	poolctl init
//	poolctl issue
//	poolctl regenerate --force
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dr-redtec/Voice-AI-Latency/internal/callnum"
	"github.com/dr-redtec/Voice-AI-Latency/internal/config"
)

const opTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "poolctl",
		Short: "Inspect and manage the call number pool",
		Long: `poolctl works against the pool backend named by the gateway's environment
(CALL_NUMBER_BACKEND, CALL_NUMBER_POOL_FILE, CALL_NUMBER_BADGER_DIR,
CALL_NUMBER_RANGE_START, CALL_NUMBER_RANGE_END).

Issued numbers never return to the pool on their own; participants key their
survey answers by them. Use regenerate only between study rounds.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pool operations to stderr")

	root.AddCommand(newStatusCmd(&verbose))
	root.AddCommand(newInitCmd(&verbose))
	root.AddCommand(newIssueCmd(&verbose))
	root.AddCommand(newRegenerateCmd(&verbose))
	return root
}

func openAllocator(verbose bool) (*callnum.Allocator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logOut := io.Writer(io.Discard)
	if verbose {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, nil))
	return callnum.NewAllocatorFromConfig(cfg, log)
}

func newStatusCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many numbers are left",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alloc, err := openAllocator(*verbose)
			if err != nil {
				return err
			}
			defer alloc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			numbers, err := alloc.Snapshot(ctx)
			if err != nil {
				return err
			}
			start, end := alloc.Range()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "range:     %03d-%03d\n", start, end)
			fmt.Fprintf(out, "remaining: %d\n", len(numbers))
			if len(numbers) > 0 {
				preview := numbers
				if len(preview) > 8 {
					preview = preview[:8]
				}
				fmt.Fprintf(out, "preview:   %s\n", strings.Join(preview, " "))
			}
			return nil
		},
	}
}

func newInitCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Materialize the pool if it does not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alloc, err := openAllocator(*verbose)
			if err != nil {
				return err
			}
			defer alloc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			// Remaining materializes the full range on first contact and is
			// a no-op on an existing pool.
			remaining, err := alloc.Remaining(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pool ready, %d numbers remaining\n", remaining)
			return nil
		},
	}
}

func newIssueCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "Draw one number from the pool",
		Long:  "Draws exactly like the gateway does. The number is gone afterwards, so use this for smoke tests, not for browsing.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alloc, err := openAllocator(*verbose)
			if err != nil {
				return err
			}
			defer alloc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			number, err := alloc.Issue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		},
	}
}

func newRegenerateCmd(verbose *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Recreate the full range, returning every issued number",
		Long: `Regeneration puts already-issued numbers back into circulation. Survey
answers keyed by old numbers would collide with new calls, so run this only
when starting a fresh study round.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("regenerate reissues numbers already handed out; pass --force to confirm")
			}

			alloc, err := openAllocator(*verbose)
			if err != nil {
				return err
			}
			defer alloc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
			defer cancel()

			size, err := alloc.Regenerate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pool regenerated with %d numbers\n", size)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive regeneration")
	return cmd
}
