package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/engine"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Action string
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <object.json>",
		Short: "Apply one object change to the catalog",
		Long: `Handle one local change the way a save or delete hook would.

insert and update create the remote resource when the object has no mirror
record yet, and update it otherwise. delete removes the remote resource and
the mirror record; it does nothing for an object that was never synced.

Example:
  eventpush push event-42.json
  eventpush push --action delete event-42.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Action, "action", "a", string(engine.ActionUpdate), "insert, update or delete")

	return cmd
}

func runPush(opts *PushOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	action, err := engine.ParseAction(opts.Action)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeSync, err.Error(), nil)
	}

	obj, err := loadObject(path, f)
	if err != nil {
		return err
	}

	env, err := newSyncEnv(opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			env.logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res := env.engine.Handle(ctx, obj, action)
	view := viewResult(res)
	if res.Err != nil {
		return f.Fail(ExitFailure, ErrCodeSync, view.String(), view)
	}
	return f.Success(view, view.String())
}
