package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/sendqueue"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	Method      string
	Path        string
	ContentType string
	Data        string
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue [file|-]",
		Short: "Durably queue a request for delivery",
		Long: `Append a request to the send queue.

The payload is read from --data, from a file, or from stdin ("-").
JSON payloads are stored in canonical form.

Examples:
  bizsync enqueue --path /customers --data '{"name":"Ada"}'
  bizsync enqueue --method PUT --path /customers/42 ./customer.json
  cat order.json | bizsync enqueue --path /orders -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Method, "method", "POST", "HTTP method (POST|PUT|PATCH|DELETE)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "remote path (required)")
	cmd.Flags().StringVar(&opts.ContentType, "content-type", "application/json", "payload content type")
	cmd.Flags().StringVar(&opts.Data, "data", "", "inline payload")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

func runEnqueue(opts *EnqueueOptions, args []string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	payload, err := readPayload(opts, args, cmd.InOrStdin())
	if err != nil {
		_ = out.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.queue.Enqueue(commandContext(cmd), sendqueue.Request{
		Method:      opts.Method,
		Path:        opts.Path,
		ContentType: opts.ContentType,
		Payload:     payload,
	})
	if err != nil {
		_ = out.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to enqueue", err)
	}

	return out.Success(newEntryOutput(e), func(w io.Writer) {
		fmt.Fprintf(w, "Enqueued entry %d: %s %s\n", e.ID, e.Method, e.Path)
	})
}

func readPayload(opts *EnqueueOptions, args []string, stdin io.Reader) ([]byte, error) {
	if opts.Data != "" && len(args) > 0 {
		return nil, fmt.Errorf("use either --data or a file argument, not both")
	}
	if len(args) == 0 {
		return []byte(opts.Data), nil
	}
	if args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}
