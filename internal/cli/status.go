package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/ir"
)

// StatusResult is the status command's output.
type StatusResult struct {
	ObjectType string    `json:"object_type"`
	LocalID    string    `json:"local_id"`
	RemoteID   string    `json:"remote_id"`
	Snapshot   ir.Object `json:"snapshot"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <type> <id>",
		Short: "Show the mirror record of an object",
		Long: `Show which remote resource a local object is synced to.

Exits with code 1 when the object has no mirror record.

Example:
  eventpush status event 42`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, objectType, localID string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, f, false)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, f)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec, found, err := st.Lookup(ctx, objectType, localID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if !found {
		return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("%s/%s has no mirror record", objectType, localID), nil)
	}

	text := fmt.Sprintf("%s/%s -> %s (created %s, updated %s)",
		rec.ObjectType, rec.LocalID, rec.RemoteID,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339))
	return f.Success(StatusResult{
		ObjectType: rec.ObjectType,
		LocalID:    rec.LocalID,
		RemoteID:   rec.RemoteID,
		Snapshot:   rec.Snapshot,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, text)
}
