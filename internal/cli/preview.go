package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/engine"
	"github.com/roach88/eventpush/internal/ir"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	Strict bool
}

// PreviewResult is the preview command's output.
type PreviewResult struct {
	ObjectType string    `json:"object_type"`
	LocalID    string    `json:"local_id"`
	Payload    ir.Object `json:"payload"`
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <object.json>",
		Short: "Print the payload an object maps to",
		Long: `Build the catalog payload for an object document without sending it.

With --strict every mapped path is resolved strictly and each path that
does not resolve is reported. Normal syncing silently drops such keys.

Example:
  eventpush preview event-42.json
  eventpush preview --strict event-42.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "report mapped paths that do not resolve")

	return cmd
}

func runPreview(opts *PreviewOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, f, false)
	if err != nil {
		return err
	}
	s, err := newSite(cfg, f)
	if err != nil {
		return err
	}
	obj, err := loadObject(path, f)
	if err != nil {
		return err
	}

	// Payload and Diagnose never touch the mirror or the catalog.
	eng := engine.New(loadMappings(cfg, logger), nil, nil, s, engine.WithLogger(logger))

	payload, ok := eng.Payload(obj)
	if !ok {
		return f.Fail(ExitFailure, ErrCodeMapping, fmt.Sprintf("no mapping for content type %q", obj.Type()), nil)
	}

	if opts.Strict {
		if pathErrs := eng.Diagnose(obj); len(pathErrs) > 0 {
			details := make([]string, 0, len(pathErrs))
			for _, pe := range pathErrs {
				details = append(details, pe.Error())
			}
			return f.Fail(ExitFailure, ErrCodePath, fmt.Sprintf("%d mapped path(s) did not resolve", len(pathErrs)), details)
		}
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "encode payload", err)
	}
	return f.Success(PreviewResult{ObjectType: obj.Type(), LocalID: obj.ID(), Payload: payload}, string(text))
}
