// Package playbook matches alerts to static remediation playbooks.
//
// Matching is deterministic: the first library entry with the alert's severity
// and a category token contained in the alert's category wins; failing that the
// first entry whose category token matches; failing that the default playbook.
package playbook

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

//go:embed playbooks.toml
var embedded []byte

// DefaultCategory is assumed for alerts without a category.
const DefaultCategory = "general"

// Definition is one remediation playbook. Definitions are reference data and
// are never modified after loading.
type Definition struct {
	ID         string         `toml:"id" json:"id"`
	Category   string         `toml:"category" json:"category"`
	Severity   alert.Severity `toml:"severity" json:"severity,omitempty"`
	Summary    string         `toml:"summary" json:"summary"`
	Owner      string         `toml:"owner" json:"owner"`
	Resolution string         `toml:"resolution" json:"resolution"`
	Steps      []string       `toml:"steps" json:"steps"`
	Guardrail  string         `toml:"guardrail" json:"guardrail"`
}

// Default is returned whenever nothing in the library matches.
var Default = Definition{
	ID:         "default-triage",
	Category:   DefaultCategory,
	Summary:    "General alarm triage",
	Owner:      "Duty site manager",
	Resolution: "Owner assigned within 4 hours",
	Steps: []string{
		"Confirm the alert against site conditions",
		"Assign an owner and a due time",
		"Record the root cause once known",
		"Close or escalate at the next coordination meeting",
	},
	Guardrail: "Unowned alerts are reviewed at every shift handover.",
}

// Library is an ordered, immutable playbook collection.
type Library struct {
	entries []Definition
	byID    map[string]int
}

type file struct {
	Playbooks []Definition `toml:"playbook"`
}

// Parse decodes and validates a TOML playbook library.
func Parse(data []byte) (*Library, error) {
	var f file
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("decode playbooks: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown playbook keys: %v", undecoded)
	}

	lib := &Library{
		entries: make([]Definition, 0, len(f.Playbooks)),
		byID:    make(map[string]int, len(f.Playbooks)),
	}
	var errs []error
	for i, d := range f.Playbooks {
		d.Category = strings.ToLower(strings.TrimSpace(d.Category))
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Errorf("playbook %d: id is required", i))
			continue
		case d.Category == "":
			errs = append(errs, fmt.Errorf("playbook %q: category is required", d.ID))
			continue
		case d.Severity != "" && d.Severity.Rank() == 0:
			errs = append(errs, fmt.Errorf("playbook %q: invalid severity %q", d.ID, d.Severity))
			continue
		case d.ID == Default.ID:
			errs = append(errs, fmt.Errorf("playbook %q: id is reserved", d.ID))
			continue
		}
		if _, dup := lib.byID[d.ID]; dup {
			errs = append(errs, fmt.Errorf("playbook %q: duplicate id", d.ID))
			continue
		}
		lib.byID[d.ID] = len(lib.entries)
		lib.entries = append(lib.entries, d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return lib, nil
}

// Load reads a TOML playbook library from path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read playbooks: %w", err)
	}
	return Parse(data)
}

// Builtin returns the library shipped with the binary.
func Builtin() *Library {
	lib, err := Parse(embedded)
	if err != nil {
		panic(fmt.Sprintf("embedded playbooks: %v", err))
	}
	return lib
}

// Len returns the number of library entries, excluding the default.
func (l *Library) Len() int { return len(l.entries) }

// All returns the library entries in match order.
func (l *Library) All() []Definition {
	return append([]Definition(nil), l.entries...)
}

// Get looks up a playbook by id. The default playbook is always found.
func (l *Library) Get(id string) (Definition, bool) {
	if id == Default.ID {
		return Default, true
	}
	i, ok := l.byID[id]
	if !ok {
		return Definition{}, false
	}
	return l.entries[i], true
}

// Resolve returns the playbook for a. A nil alert yields the default playbook.
func (l *Library) Resolve(a *alert.Alert) Definition {
	if a == nil {
		return Default
	}
	return l.Match(alert.NormalizeSeverity(a), a.Category)
}

// Match applies the two-stage lookup to an already normalized severity and a raw category.
func (l *Library) Match(sev alert.Severity, category string) Definition {
	category = strings.ToLower(category)
	if category == "" {
		category = DefaultCategory
	}

	for _, d := range l.entries {
		if d.Severity == sev && strings.Contains(category, d.Category) {
			return d
		}
	}
	for _, d := range l.entries {
		if strings.Contains(category, d.Category) {
			return d
		}
	}
	return Default
}
