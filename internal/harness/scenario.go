package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eventpush/internal/engine"
)

// Scenario is one sync scenario.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// MappingFile is a mapping document path, relative to the scenario file.
	MappingFile string `yaml:"mapping_file,omitempty"`

	// Mapping is an inline mapping document. Exactly one of Mapping and
	// MappingFile must be set.
	Mapping yaml.Node `yaml:"mapping,omitempty"`

	Site SiteConfig `yaml:"site"`

	// RemoteIDs are handed out by the fake catalog's creates, in order.
	RemoteIDs []string `yaml:"remote_ids,omitempty"`

	// Setup seeds mirror records and remote resources before the steps run.
	Setup []SeedStep `yaml:"setup,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`

	// dir is the directory relative paths resolve against.
	dir string
}

// SiteConfig describes the host site used for canonical and file URLs.
type SiteConfig struct {
	BaseURL       string `yaml:"base_url"`
	CanonicalPath string `yaml:"canonical_path,omitempty"`
	FilesBaseURL  string `yaml:"files_base_url,omitempty"`
}

// SeedStep is an object that was synced before the scenario started.
type SeedStep struct {
	ObjectType string `yaml:"object_type"`
	LocalID    string `yaml:"local_id"`
	RemoteID   string `yaml:"remote_id"`

	// Kind is the remote resource kind. Defaults to ObjectType.
	Kind string `yaml:"kind,omitempty"`
}

// Step hands one object to the engine.
type Step struct {
	Action string `yaml:"action"`

	// Object is an object document, in the same shape as the JSON files
	// the CLI reads.
	Object map[string]any `yaml:"object"`

	// Fail makes the next catalog call of Fail.Op return an error.
	Fail *FailSpec `yaml:"fail,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// FailSpec injects a catalog failure.
type FailSpec struct {
	Op      string `yaml:"op"`
	Message string `yaml:"message"`
}

// ExpectClause is checked against a step's engine.Result.
type ExpectClause struct {
	Outcome  string `yaml:"outcome"`
	RemoteID string `yaml:"remote_id,omitempty"`

	// Code is the expected SyncError code for failed steps.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates catalog calls or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Op and Kind select catalog calls (catalog_calls).
	Op    string `yaml:"op,omitempty"`
	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Ops is the expected call order (catalog_order).
	Ops []string `yaml:"ops,omitempty"`

	// ObjectType and LocalID select a mirror record (mirror).
	ObjectType string `yaml:"object_type,omitempty"`
	LocalID    string `yaml:"local_id,omitempty"`
	Absent     bool   `yaml:"absent,omitempty"`

	// RemoteID is expected in the mirror (mirror) or selects a remote
	// resource (remote_payload, catalog_calls).
	RemoteID string `yaml:"remote_id,omitempty"`

	// Expect is a subset of the remote payload (remote_payload).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCatalogCalls  = "catalog_calls"
	AssertCatalogOrder  = "catalog_order"
	AssertMirror        = "mirror"
	AssertRemotePayload = "remote_payload"
)

var catalogOps = map[string]bool{"create": true, "update": true, "delete": true}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses a scenario. Relative paths resolve against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = dir

	if scenario.MappingFile != "" && !filepath.IsAbs(scenario.MappingFile) && dir != "" {
		scenario.MappingFile = filepath.Join(dir, scenario.MappingFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	inline := !s.Mapping.IsZero()
	switch {
	case inline && s.MappingFile != "":
		return fmt.Errorf("mapping and mapping_file are mutually exclusive")
	case !inline && s.MappingFile == "":
		return fmt.Errorf("mapping or mapping_file is required")
	case s.MappingFile != "":
		if _, err := os.Stat(s.MappingFile); os.IsNotExist(err) {
			return fmt.Errorf("mapping file not found: %s", s.MappingFile)
		}
	}

	if s.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, seed := range s.Setup {
		if seed.ObjectType == "" || seed.LocalID == "" || seed.RemoteID == "" {
			return fmt.Errorf("setup[%d]: object_type, local_id and remote_id are required", i)
		}
	}

	for i, step := range s.Steps {
		if _, err := engine.ParseAction(step.Action); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Object == nil {
			return fmt.Errorf("steps[%d]: object is required", i)
		}
		if step.Fail != nil && !catalogOps[step.Fail.Op] {
			return fmt.Errorf("steps[%d].fail: unknown op %q", i, step.Fail.Op)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("steps[%d].expect: outcome is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCatalogCalls:
		if !catalogOps[a.Op] {
			return fmt.Errorf("assertions[%d]: op must be create, update or delete for catalog_calls", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for catalog_calls", index)
		}
	case AssertCatalogOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for catalog_order", index)
		}
	case AssertMirror:
		if a.ObjectType == "" || a.LocalID == "" {
			return fmt.Errorf("assertions[%d]: object_type and local_id are required for mirror", index)
		}
		if a.Absent == (a.RemoteID != "") {
			return fmt.Errorf("assertions[%d]: mirror needs exactly one of remote_id and absent", index)
		}
	case AssertRemotePayload:
		if a.RemoteID == "" {
			return fmt.Errorf("assertions[%d]: remote_id is required for remote_payload", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for remote_payload", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
