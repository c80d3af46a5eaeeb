package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/store"
)

type deadLetterOutput struct {
	ID        int64     `json:"id"`
	QueueID   int64     `json:"queue_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewDeadLetterCommand creates the deadletter command group.
func NewDeadLetterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspect and requeue dead letters",
		Long: `Dead letters are entries that failed max_attempts deliveries.
They are kept until requeued.`,
	}
	cmd.AddCommand(newDeadLetterListCommand(rootOpts))
	cmd.AddCommand(newDeadLetterRetryCommand(rootOpts))
	return cmd
}

func newDeadLetterListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List dead letters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(opts, cmd)
			dls, err := a.queue.DeadLetters(commandContext(cmd))
			if err != nil {
				_ = out.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to read dead letters", err)
			}

			views := make([]deadLetterOutput, 0, len(dls))
			for _, dl := range dls {
				views = append(views, newDeadLetterOutput(dl))
			}
			return out.Success(views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintln(w, "No dead letters.")
					return
				}
				for _, v := range views {
					fmt.Fprintf(w, "#%d (entry %d) %s %s attempts=%d: %s\n",
						v.ID, v.QueueID, v.Method, v.Path, v.Attempts, v.LastError)
				}
			})
		},
	}
}

func newDeadLetterRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Move a dead letter back onto the queue",
		Long: `Requeue a dead letter at the tail of the send queue with its
attempt count reset.

Example:
  bizsync deadletter retry 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(opts, cmd)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				_ = out.Error(ErrCodeInput, fmt.Sprintf("invalid dead letter id %q", args[0]), nil)
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid dead letter id %q", args[0]))
			}

			a, err := openApp(opts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.queue.Retry(commandContext(cmd), id)
			if err != nil {
				_ = out.Error(ErrCodeNotFound, err.Error(), nil)
				return notFoundOr(err, fmt.Sprintf("dead letter %d", id))
			}
			return out.Success(newEntryOutput(e), func(w io.Writer) {
				fmt.Fprintf(w, "Requeued dead letter %d as entry %d\n", id, e.ID)
			})
		},
	}
}

func newDeadLetterOutput(dl store.DeadLetter) deadLetterOutput {
	return deadLetterOutput{
		ID:        dl.ID,
		QueueID:   dl.QueueID,
		Method:    dl.Method,
		Path:      dl.Path,
		Attempts:  dl.Attempts,
		LastError: dl.LastError,
		FailedAt:  dl.FailedAt,
	}
}
