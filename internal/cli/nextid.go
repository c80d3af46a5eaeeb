package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/idalloc"
)

// NewNextIDCommand creates the nextid command.
func NewNextIDCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nextid <kind>",
		Short: "Print the next local id for a record kind",
		Long: `Print the id the next locally created record of <kind> will get.
Server-assigned ids do not affect the local sequence.

Example:
  bizsync nextid customer`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(rootOpts, cmd)
			kind := args[0]
			id, err := idalloc.NextLocalID(commandContext(cmd), a.store, kind)
			if err != nil {
				_ = out.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to allocate id", err)
			}
			return out.Success(map[string]any{"kind": kind, "id": id}, func(w io.Writer) {
				fmt.Fprintln(w, id)
			})
		},
	}
}
