package artifact

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/buildout/types"
)

// Plan is a declarative list of registrations, applied in order.
type Plan struct {
	Steps []PlanStep `yaml:"steps"`
}

// PlanStep is either a producer registration or a republish.
type PlanStep struct {
	Task      string         `yaml:"task"`
	Type      string         `yaml:"type"`
	Operation string         `yaml:"operation"`
	File      string         `yaml:"file"`
	Republish *RepublishStep `yaml:"republish"`
}

// RepublishStep makes the producers of From also satisfy To.
type RepublishStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LoadPlan reads a YAML plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// Apply registers every step with h, stopping at the first failure.
// It returns the slot allocated to each producer step, keyed by "task/TYPE".
func (p *Plan) Apply(h *Holder) (map[string]*Location, error) {
	slots := make(map[string]*Location)
	for i, step := range p.Steps {
		if err := applyStep(h, step, slots); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return slots, nil
}

func applyStep(h *Holder, step PlanStep, slots map[string]*Location) error {
	if step.Republish != nil {
		from, err := types.LookupArtifactTypeName(step.Republish.From)
		if err != nil {
			return err
		}
		to, err := types.LookupArtifactTypeName(step.Republish.To)
		if err != nil {
			return err
		}
		return h.Republish(from, to)
	}

	if step.Task == "" {
		return errors.New("task is required")
	}
	t, err := types.LookupArtifactTypeName(step.Type)
	if err != nil {
		return err
	}
	op := Initial
	if step.Operation != "" {
		if op, err = ParseOperationType(step.Operation); err != nil {
			return err
		}
	}

	slot := NewLocation()
	if err := h.RegisterProducer(t, op, TaskName(step.Task), slot, step.File); err != nil {
		return err
	}
	slots[step.Task+"/"+t.Name] = slot
	return nil
}
