package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/harness"
)

// ScenarioOutput is the output of the scenario command.
type ScenarioOutput struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace"`
	State  map[string]any       `json:"state,omitempty"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <file.yaml>",
		Short: "Run a reconciliation or queue scenario",
		Long: `Run a scenario file and print its trace.

Exit codes:
  0 - All assertions passed
  1 - One or more assertions failed
  2 - Command error (missing or malformed file)

Example:
  bizsync scenario ./scenarios/full_replace.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(rootOpts, cmd)

			s, err := harness.LoadScenario(args[0])
			if err != nil {
				_ = out.Error(ErrCodeInput, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load scenario", err)
			}
			result, err := harness.Run(s)
			if err != nil {
				_ = out.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to run scenario", err)
			}

			output := ScenarioOutput{
				Name:   s.Name,
				Pass:   result.Pass,
				Errors: result.Errors,
				Trace:  result.Trace,
				State:  result.State,
			}
			if err := out.Success(output, func(w io.Writer) {
				writeScenarioText(w, output, rootOpts.Verbose)
			}); err != nil {
				return err
			}
			if !result.Pass {
				return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", s.Name))
			}
			return nil
		},
	}
}

func writeScenarioText(w io.Writer, o ScenarioOutput, verbose bool) {
	for _, ev := range o.Trace {
		fmt.Fprintf(w, "%3d %-12s", ev.Seq, ev.Type)
		switch {
		case ev.Alt != "":
			fmt.Fprintf(w, " %s %q", ev.Alt, ev.Name)
			if len(ev.Children) > 0 {
				fmt.Fprintf(w, " children=%v", ev.Children)
			}
		case ev.Report != nil:
			r := ev.Report
			fmt.Fprintf(w, " pending=%d delivered=%d retried=%d dead_lettered=%d dropped=%d skipped=%t disconnected=%t",
				r.Pending, r.Delivered, r.Retried, r.DeadLettered, r.Dropped, r.Skipped, r.Disconnected)
		case ev.State != "":
			fmt.Fprintf(w, " %s", ev.State)
		default:
			if ev.EntryID != 0 {
				fmt.Fprintf(w, " #%d", ev.EntryID)
			}
			fmt.Fprintf(w, " %s %s", ev.Method, ev.Path)
			if ev.Outcome != "" {
				fmt.Fprintf(w, " -> %s", ev.Outcome)
			}
		}
		fmt.Fprintln(w)
	}

	if o.Pass {
		fmt.Fprintf(w, "PASS %s\n", o.Name)
		return
	}
	fmt.Fprintf(w, "FAIL %s\n", o.Name)
	for _, e := range o.Errors {
		if verbose {
			fmt.Fprintf(w, "  %s\n", e)
			continue
		}
		fmt.Fprintf(w, "  %s\n", firstLine(e))
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
