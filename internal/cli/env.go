package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/catalog"
	"github.com/roach88/eventpush/internal/config"
	"github.com/roach88/eventpush/internal/content"
	"github.com/roach88/eventpush/internal/engine"
	"github.com/roach88/eventpush/internal/mapping"
	"github.com/roach88/eventpush/internal/site"
	"github.com/roach88/eventpush/internal/store"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger writes text logs to w, at debug level with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file. With validate set every problem is
// reported at once.
func loadConfig(opts *RootOptions, f *OutputFormatter, validate bool) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if !validate {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		var problems []string
		for _, p := range config.Problems(err) {
			problems = append(problems, p.Error())
		}
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", problems)
	}
	return cfg, nil
}

// loadMappings parses the mapping document. A broken document is logged
// and yields an empty set, so every object is skipped.
func loadMappings(cfg *config.Config, logger *slog.Logger) *mapping.Set {
	set, err := cfg.Mappings()
	if err != nil {
		logger.Warn("mapping document unusable, no content types will be synced", "error", err)
		return mapping.NewSet(nil)
	}
	logger.Debug("mapping loaded", "types", set.Types())
	return set
}

func newSite(cfg *config.Config, f *OutputFormatter) (*site.Site, error) {
	s, err := site.New(cfg.Site.BaseURL, cfg.Site.CanonicalPath, cfg.Site.FilesBaseURL)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	return s, nil
}

func openStore(cfg *config.Config, f *OutputFormatter) (*store.Store, error) {
	st, err := store.Open(cfg.StorePath(), store.WithDriver(cfg.Store.Driver))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	return st, nil
}

func loadObject(path string, f *OutputFormatter) (*content.Node, error) {
	node, err := content.Load(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeObject, err.Error(), nil)
	}
	return node, nil
}

// syncEnv is everything a command that talks to the catalog needs.
type syncEnv struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

func (e *syncEnv) Close() error {
	return e.store.Close()
}

// newSyncEnv loads and validates config, opens the store and builds the
// engine. Callers must Close the result.
func newSyncEnv(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter, extra ...engine.Option) (*syncEnv, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts, f, true)
	if err != nil {
		return nil, err
	}

	s, err := newSite(cfg, f)
	if err != nil {
		return nil, err
	}

	client, err := catalog.New(cfg.API.URL, cfg.API.Username, cfg.API.Password, catalog.WithTimeout(cfg.API.Timeout))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}

	st, err := openStore(cfg, f)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]engine.Option{engine.WithLogger(logger)}, extra...)
	eng := engine.New(loadMappings(cfg, logger), st, client, s, engineOpts...)

	return &syncEnv{cfg: cfg, store: st, engine: eng, logger: logger}, nil
}

// resultView is the printable form of an engine.Result.
type resultView struct {
	AttemptID  string `json:"attempt_id"`
	ObjectType string `json:"object_type"`
	LocalID    string `json:"local_id"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	RemoteID   string `json:"remote_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func viewResult(res engine.Result) resultView {
	v := resultView{
		AttemptID:  res.AttemptID,
		ObjectType: res.ObjectType,
		LocalID:    res.LocalID,
		Action:     string(res.Action),
		Outcome:    string(res.Outcome),
		RemoteID:   res.RemoteID,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func (v resultView) String() string {
	subject := v.ObjectType + "/" + v.LocalID
	switch {
	case v.Error != "":
		return fmt.Sprintf("%s %s failed: %s", v.Action, subject, v.Error)
	case v.RemoteID != "":
		return fmt.Sprintf("%s %s -> %s", v.Outcome, subject, v.RemoteID)
	default:
		return fmt.Sprintf("%s %s", v.Outcome, subject)
	}
}
