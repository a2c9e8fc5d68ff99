package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/mapping"
)

// ValidationResult is the validate command's output.
type ValidationResult struct {
	Source string   `json:"source"`
	Types  []string `json:"types"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [mapping-file]",
		Short: "Check a mapping document",
		Long: `Parse a mapping document and check it against the mapping schema.

Without an argument the document named by the config (mapping.file or
mapping.content_types) is checked. Every schema violation is reported.

Example:
  eventpush validate mapping.yml
  eventpush validate --config eventpush.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	source, data, err := mappingSource(opts, args, f)
	if err != nil {
		return err
	}
	f.VerboseLog("Validating %s (%d bytes)", source, len(data))

	set, err := mapping.Parse(source, data)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeMapping, "invalid mapping", strings.Split(err.Error(), "\n"))
	}

	types := set.Types()
	text := fmt.Sprintf("✓ Mapping valid: %d content type(s)", len(types))
	if len(types) > 0 {
		text += " (" + strings.Join(types, ", ") + ")"
	}
	return f.Success(ValidationResult{Source: source, Types: types}, text)
}

func mappingSource(opts *RootOptions, args []string, f *OutputFormatter) (string, []byte, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", nil, f.Fail(ExitCommandError, ErrCodeMapping, err.Error(), nil)
		}
		return args[0], data, nil
	}

	cfg, err := loadConfig(opts, f, false)
	if err != nil {
		return "", nil, err
	}
	source, data, err := cfg.MappingSource()
	if err != nil {
		return "", nil, f.Fail(ExitCommandError, ErrCodeMapping, err.Error(), nil)
	}
	return source, data, nil
}
