package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of writes and queries against a fresh
// address book, with live subscriptions watching the results.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Subscriptions are started, in order, before the first step.
	Subscriptions []Subscription `yaml:"subscriptions,omitempty"`

	// Steps run sequentially.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Subscription declares a live query.
type Subscription struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Sort    string `yaml:"sort,omitempty"`
}

// Step operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQuery  = "query"
)

// Step is one provider call.
type Step struct {
	// Op is insert, update, delete or query.
	Op string `yaml:"op"`

	// Address is passed to the provider verbatim, so invalid addresses can
	// be exercised.
	Address string `yaml:"address"`

	// Values is the write payload for insert and update.
	Values map[string]any `yaml:"values,omitempty"`

	// Sort is the sort order for query.
	Sort string `yaml:"sort,omitempty"`

	// Expect checks the outcome. Nil means any successful outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Only set fields are checked.
type Expect struct {
	// ID is the id returned by insert.
	ID *int64 `yaml:"id,omitempty"`

	// Rows is the count returned by update or delete.
	Rows *int64 `yaml:"rows,omitempty"`

	// Names are the names returned by query, in order.
	Names []string `yaml:"names,omitempty"`

	// Error is the expected provider error code, e.g. INVALID_ADDRESS.
	Error string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveryCount = "delivery_count"
	AssertDelivered     = "delivered"
	AssertPublishOrder  = "publish_order"
	AssertFinalState    = "final_state"
)

// Assertion validates the trace or the final table contents.
type Assertion struct {
	Type string `yaml:"type"`

	// Subscription names the subscription (delivery_count, delivered).
	Subscription string `yaml:"subscription,omitempty"`

	// Count is the expected deliveries (delivery_count) or rows (final_state).
	Count *int `yaml:"count,omitempty"`

	// Names is the expected latest delivery (delivered).
	Names []string `yaml:"names,omitempty"`

	// Addresses is the expected publish sequence (publish_order).
	Addresses []string `yaml:"addresses,omitempty"`

	// Address is queried by final_state.
	Address string `yaml:"address,omitempty"`

	// Expect is matched against the first row (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
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
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		if sub.Name == "" {
			return fmt.Errorf("subscriptions[%d]: name is required", i)
		}
		if seen[sub.Name] {
			return fmt.Errorf("subscriptions[%d]: duplicate name %q", i, sub.Name)
		}
		seen[sub.Name] = true
		if sub.Address == "" {
			return fmt.Errorf("subscriptions[%d]: address is required", i)
		}
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpInsert, OpUpdate:
			if step.Values == nil {
				return fmt.Errorf("steps[%d]: values is required for %s (use empty map if none)", i, step.Op)
			}
		case OpDelete, OpQuery:
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.Sort != "" && step.Op != OpQuery {
			return fmt.Errorf("steps[%d]: sort is only valid for query", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, seen); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion, subs map[string]bool) error {
	switch a.Type {
	case AssertDeliveryCount, AssertDelivered:
		if !subs[a.Subscription] {
			return fmt.Errorf("assertions[%d]: unknown subscription %q", index, a.Subscription)
		}
		if a.Type == AssertDeliveryCount && (a.Count == nil || *a.Count < 0) {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
		if a.Type == AssertDelivered && a.Names == nil {
			return fmt.Errorf("assertions[%d]: names is required for %s", index, a.Type)
		}
	case AssertPublishOrder:
		if a.Addresses == nil {
			return fmt.Errorf("assertions[%d]: addresses is required for %s", index, a.Type)
		}
	case AssertFinalState:
		if a.Address == "" {
			return fmt.Errorf("assertions[%d]: address is required for %s", index, a.Type)
		}
		if a.Count == nil && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: count or expect is required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
