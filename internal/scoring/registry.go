// Package scoring holds the rule registry and the engine that turns rules
// into candidate scores and a ranked list.
package scoring

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/imaging"
)

//go:embed weights.yaml
var defaultWeights []byte

var (
	// ErrUnboundPredicate marks a table row whose predicate has no
	// implementation. It is a deployment error.
	ErrUnboundPredicate = errors.New("rule references unknown predicate")
	// ErrDuplicateRule marks two rows with the same category and name.
	ErrDuplicateRule = errors.New("duplicate rule")
	// ErrInvalidRule marks a row missing its category or name.
	ErrInvalidRule = errors.New("invalid rule row")
)

// Facts are what a predicate may look at. Meta is nil until the payload has
// been fetched and inspected.
type Facts struct {
	Candidate candidate.Candidate
	Meta      *imaging.Metadata
}

// Predicate decides whether a rule fires. Predicates must be pure.
type Predicate func(Facts) bool

// Predicates maps predicate names (category/name) to implementations.
type Predicates map[string]Predicate

// Row is one line of the weight table.
type Row struct {
	Category  string `yaml:"category"`
	Name      string `yaml:"name"`
	Weight    int    `yaml:"weight"`
	Predicate string `yaml:"predicate,omitempty"`
}

// Table is the serialized weight table.
type Table struct {
	Rules []Row `yaml:"rules"`
}

// Rule is a row bound to its predicate.
type Rule struct {
	Category  string
	Name      string
	Weight    int
	Predicate Predicate
}

// ID returns category/name, the key used in score breakdowns.
func (r Rule) ID() string {
	return r.Category + "/" + r.Name
}

// Registry is an immutable, ordered set of bound rules. It is safe to share
// between goroutines.
type Registry struct {
	rules []Rule
}

// ParseTable decodes a YAML weight table.
func ParseTable(r io.Reader) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("decode weight table: %w", err)
	}
	return t, nil
}

// Load binds every row of table to a predicate. Rows are kept in table order.
func Load(table Table, predicates Predicates) (*Registry, error) {
	seen := make(map[string]bool, len(table.Rules))
	rules := make([]Rule, 0, len(table.Rules))
	for i, row := range table.Rules {
		category := strings.TrimSpace(row.Category)
		name := strings.TrimSpace(row.Name)
		if category == "" || name == "" {
			return nil, fmt.Errorf("row %d: %w", i, ErrInvalidRule)
		}
		id := category + "/" + name
		if seen[id] {
			return nil, fmt.Errorf("%s: %w", id, ErrDuplicateRule)
		}
		seen[id] = true

		key := row.Predicate
		if key == "" {
			key = id
		}
		pred, ok := predicates[key]
		if !ok || pred == nil {
			return nil, fmt.Errorf("%s: %q: %w", id, key, ErrUnboundPredicate)
		}
		rules = append(rules, Rule{Category: category, Name: name, Weight: row.Weight, Predicate: pred})
	}
	return &Registry{rules: rules}, nil
}

// LoadDefault binds the embedded weight table to the builtin predicates.
func LoadDefault() (*Registry, error) {
	return loadBytes(defaultWeights)
}

// LoadFile binds an operator-supplied weight table to the builtin predicates.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weight table: %w", err)
	}
	return loadBytes(data)
}

func loadBytes(data []byte) (*Registry, error) {
	table, err := ParseTable(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return Load(table, Builtin())
}

// Rules returns a copy of the bound rules in table order.
func (r *Registry) Rules() []Rule {
	return slices.Clone(r.rules)
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}
