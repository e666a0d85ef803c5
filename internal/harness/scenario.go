package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end scan test.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config adjusts the defaults the scans run with.
	Config ConfigPatch `yaml:"config,omitempty"`

	// Installation is written below the installation root before the
	// first scan.
	Installation []File `yaml:"installation"`

	// User is written below a user root. Without entries no user root
	// is configured.
	User []File `yaml:"user,omitempty"`

	// Rescans change the installation root and scan again, in order.
	Rescans []Rescan `yaml:"rescans,omitempty"`

	// Assertions are evaluated after the last scan.
	Assertions []Assertion `yaml:"assertions"`
}

// ConfigPatch overrides configuration defaults for every scan.
type ConfigPatch struct {
	Workers           int      `yaml:"workers,omitempty"`
	ExclusionKeywords []string `yaml:"exclusion_keywords,omitempty"`
	Prune             bool     `yaml:"prune,omitempty"`
}

// File is one file below a root. Exactly one of Fixture and Content is set.
type File struct {
	// Path is slash-separated and relative to the root.
	Path string `yaml:"path"`

	// Fixture names a service written together with its train file.
	Fixture string `yaml:"fixture,omitempty"`

	// Patch changes the fixture before it is written.
	Patch *Patch `yaml:"patch,omitempty"`

	// Content is written verbatim.
	Content string `yaml:"content,omitempty"`
}

// Patch overrides parts of a fixture.
type Patch struct {
	Locomotive string `yaml:"locomotive,omitempty"`
	Group      string `yaml:"group,omitempty"`
	Cargo      bool   `yaml:"cargo,omitempty"`
}

// Rescan is a change to the installation root followed by another scan.
type Rescan struct {
	Write  []File   `yaml:"write,omitempty"`
	Remove []string `yaml:"remove,omitempty"`
	Prune  bool     `yaml:"prune,omitempty"`
}

// Assertion validates a scan summary or the stored catalogue.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Scan selects the summary (1-based, 0 is the last scan).
	Scan int `yaml:"scan,omitempty"`

	// Origin selects the root a service path is relative to.
	// Defaults to "installation".
	Origin string `yaml:"origin,omitempty"`

	// Path is the service file relative to its root.
	Path string `yaml:"path,omitempty"`

	// Expect is a subset of JSON fields of the summary or record.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of stored services.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSummary      = "summary"
	AssertService      = "service"
	AssertAbsent       = "absent"
	AssertServiceCount = "service_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Installation) == 0 {
		return fmt.Errorf("installation list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Config.Workers < 0 {
		return fmt.Errorf("config.workers must be non-negative")
	}

	for i, f := range s.Installation {
		if err := validateFile(f); err != nil {
			return fmt.Errorf("installation[%d]: %w", i, err)
		}
	}
	for i, f := range s.User {
		if err := validateFile(f); err != nil {
			return fmt.Errorf("user[%d]: %w", i, err)
		}
	}
	for i, r := range s.Rescans {
		for j, f := range r.Write {
			if err := validateFile(f); err != nil {
				return fmt.Errorf("rescans[%d].write[%d]: %w", i, j, err)
			}
		}
		for j, p := range r.Remove {
			if err := validateRelPath(p); err != nil {
				return fmt.Errorf("rescans[%d].remove[%d]: %w", i, j, err)
			}
		}
	}

	scans := 1 + len(s.Rescans)
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, scans); err != nil {
			return err
		}
	}

	return nil
}

func validateFile(f File) error {
	if err := validateRelPath(f.Path); err != nil {
		return err
	}
	switch {
	case f.Fixture == "" && f.Content == "":
		return fmt.Errorf("%s: fixture or content is required", f.Path)
	case f.Fixture != "" && f.Content != "":
		return fmt.Errorf("%s: fixture and content are mutually exclusive", f.Path)
	case f.Patch != nil && f.Fixture == "":
		return fmt.Errorf("%s: patch requires a fixture", f.Path)
	case f.Fixture != "":
		if _, ok := fixtures[f.Fixture]; !ok {
			return fmt.Errorf("%s: unknown fixture %q", f.Path, f.Fixture)
		}
		if !strings.HasSuffix(f.Path, serviceSuffix) {
			return fmt.Errorf("%s: fixture path must end in %s", f.Path, serviceSuffix)
		}
	}
	return nil
}

func validateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("path is required")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return fmt.Errorf("%s: path must be relative to the root", p)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, scans int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSummary:
		if a.Scan < 0 || a.Scan > scans {
			return fmt.Errorf("assertions[%d]: scan %d out of range 0..%d", index, a.Scan, scans)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for summary", index)
		}
	case AssertService, AssertAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
		if a.Type == AssertService && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for service", index)
		}
	case AssertServiceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for service_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	switch a.Origin {
	case "", "installation", "user":
	default:
		return fmt.Errorf("assertions[%d]: unknown origin %q", index, a.Origin)
	}

	return nil
}
