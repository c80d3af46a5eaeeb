package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
)

// QueueOptions holds flags for the queue command.
type QueueOptions struct {
	*RootOptions
	Drain bool
}

// entryOutput is a queue entry as printed by the CLI.
type entryOutput struct {
	ID          int64     `json:"id"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Attempts    int       `json:"attempts"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

func newEntryOutput(e store.QueueEntry) entryOutput {
	return entryOutput{
		ID:          e.ID,
		Method:      e.Method,
		Path:        e.Path,
		ContentType: e.ContentType,
		Attempts:    e.Attempts,
		Payload:     string(e.Payload),
		CreatedAt:   e.CreatedAt,
	}
}

// QueueResult is the output of the queue command.
type QueueResult struct {
	Stats sendqueue.Stats        `json:"stats"`
	Next  *entryOutput           `json:"next,omitempty"`
	Drain *sendqueue.DrainReport `json:"drain,omitempty"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show send queue status and the next entry",
		Long: `Show the number of pending entries and dead letters, and the entry
that will be delivered next.

With --drain, one drain cycle runs first.

Examples:
  bizsync queue
  bizsync queue --drain --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Drain, "drain", false, "run one drain cycle before reporting")

	return cmd
}

func runQueue(opts *QueueOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	out := formatter(opts.RootOptions, cmd)
	var result QueueResult

	if opts.Drain {
		report, err := a.queue.DrainOnce(ctx)
		if err != nil {
			_ = out.Error(ErrCodeDelivery, err.Error(), nil)
			return WrapExitError(ExitFailure, "drain failed", err)
		}
		result.Drain = &report
	}

	result.Stats, err = a.queue.Stats(ctx)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	next, err := a.queue.GetNext(ctx)
	switch {
	case err == nil:
		view := newEntryOutput(next)
		result.Next = &view
	case !errors.Is(err, store.ErrNotFound):
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	return out.Success(result, func(w io.Writer) {
		writeQueueText(w, result)
	})
}

func writeQueueText(w io.Writer, r QueueResult) {
	if d := r.Drain; d != nil {
		if d.Skipped {
			fmt.Fprintln(w, "Drain skipped: cannot send")
		} else {
			fmt.Fprintf(w, "Drain: %d attempted, %d delivered, %d retried, %d dead-lettered, %d dropped\n",
				d.Attempted, d.Delivered, d.Retried, d.DeadLettered, d.Dropped)
		}
	}
	fmt.Fprintf(w, "Pending: %d\n", r.Stats.Pending)
	fmt.Fprintf(w, "Dead letters: %d\n", r.Stats.DeadLetters)
	if r.Next == nil {
		fmt.Fprintln(w, "Next: (none)")
		return
	}
	fmt.Fprintf(w, "Next: #%d %s %s (attempts %d)\n", r.Next.ID, r.Next.Method, r.Next.Path, r.Next.Attempts)
}
