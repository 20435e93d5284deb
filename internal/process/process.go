package process

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freshet-io/freshet/internal/schema"
)

// Persistence declares how long a record produced by a process is kept.
type Persistence string

const (
	// PersistenceRaw records are kept forever.
	PersistenceRaw Persistence = "raw"
	// PersistenceCached records may be reproduced from inputs; the engine is
	// free to reuse a finished record with a matching checksum. Cached
	// processes must be idempotent.
	PersistenceCached Persistence = "cached"
	// PersistenceTemp records are disposable intermediates. Checksum reuse
	// applies the same way as for cached records.
	PersistenceTemp Persistence = "temp"
)

// Priority orders dispatch when more runs are queued than slots available.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

var (
	typeRegex     = regexp.MustCompile(`^data:[a-z0-9:]+:$`)
	categoryRegex = regexp.MustCompile(`^([a-z0-9]+[:\-])*[a-z0-9]+:$`)
	slugRegex     = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Run holds the executable part of a process: which expression engine
// renders the program and the program text itself.
type Run struct {
	Language string `yaml:"language,omitempty" json:"language,omitempty"`
	Program  string `yaml:"program" json:"program"`
}

// Process is a declarative unit of work: identity, typed input and output
// schemas, and a templated shell program.
type Process struct {
	Slug         string            `yaml:"slug" json:"slug"`
	Name         string            `yaml:"name" json:"name"`
	Version      string            `yaml:"version" json:"version"`
	Type         string            `yaml:"type" json:"type"`
	Category     string            `yaml:"category,omitempty" json:"category,omitempty"`
	Persistence  Persistence       `yaml:"persistence,omitempty" json:"persistence,omitempty"`
	Priority     Priority          `yaml:"priority,omitempty" json:"priority,omitempty"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	DataName     string            `yaml:"data_name,omitempty" json:"data_name,omitempty"`
	Input        []schema.Field    `yaml:"input,omitempty" json:"input,omitempty"`
	Output       []schema.Field    `yaml:"output,omitempty" json:"output,omitempty"`
	Run          Run               `yaml:"run" json:"run"`
	Requirements map[string]string `yaml:"requirements,omitempty" json:"requirements,omitempty"`
}

// ExpressionEngine names the engine that renders Run.Program. Empty means
// the program is taken verbatim.
func (p Process) ExpressionEngine() string {
	return p.Requirements["expression-engine"]
}

// Validate ensures the descriptor is self-consistent.
func (p Process) Validate() error {
	if p.Slug == "" {
		return fmt.Errorf("process: slug is required")
	}
	if !slugRegex.MatchString(p.Slug) {
		return fmt.Errorf("process %s: slug may be lowercase alphanumerics separated by dashes", p.Slug)
	}
	if p.Name == "" {
		return fmt.Errorf("process %s: name is required", p.Slug)
	}
	if p.Version == "" {
		return fmt.Errorf("process %s: version is required", p.Slug)
	}
	if _, err := parseVersion(p.Version); err != nil {
		return fmt.Errorf("process %s: %w", p.Slug, err)
	}
	if !typeRegex.MatchString(p.Type) {
		return fmt.Errorf("process %s: type may be alphanumerics separated by colon", p.Slug)
	}
	if p.Category != "" && !categoryRegex.MatchString(p.Category) {
		return fmt.Errorf("process %s: category may be alphanumerics separated by colon", p.Slug)
	}
	switch p.Persistence {
	case "", PersistenceRaw, PersistenceCached, PersistenceTemp:
	default:
		return fmt.Errorf("process %s: unknown persistence %q", p.Slug, p.Persistence)
	}
	switch p.Priority {
	case "", PriorityNormal, PriorityHigh:
	default:
		return fmt.Errorf("process %s: unknown priority %q", p.Slug, p.Priority)
	}
	if strings.TrimSpace(p.Run.Program) == "" {
		return fmt.Errorf("process %s: run program is required", p.Slug)
	}
	if err := schema.ValidateFields(p.Input); err != nil {
		return fmt.Errorf("process %s input: %w", p.Slug, err)
	}
	if err := schema.ValidateFields(p.Output); err != nil {
		return fmt.Errorf("process %s output: %w", p.Slug, err)
	}
	return nil
}

// Normalized clones the descriptor and fills enum defaults.
func (p Process) Normalized() Process {
	if p.Persistence == "" {
		p.Persistence = PersistenceRaw
	}
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	if p.Run.Language == "" {
		p.Run.Language = "bash"
	}
	return p
}

// version is a dotted numeric version, compared element-wise.
type version []int

func parseVersion(raw string) (version, error) {
	parts := strings.Split(raw, ".")
	out := make(version, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q", raw)
		}
		out = append(out, n)
	}
	return out, nil
}

func (v version) compare(other version) int {
	for i := 0; i < len(v) || i < len(other); i++ {
		a, b := 0, 0
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareVersions orders two dotted numeric versions. Unparseable versions
// compare as equal so callers fall back to explicit conflict handling.
func CompareVersions(a, b string) int {
	va, errA := parseVersion(a)
	vb, errB := parseVersion(b)
	if errA != nil || errB != nil {
		return 0
	}
	return va.compare(vb)
}
