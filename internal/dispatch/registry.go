package dispatch

import (
	"fmt"
	"os"
	"sort"

	"AnalysisOrchestrator/internal/domain"

	"gopkg.in/yaml.v3"
)

// Registry maps capabilities to the workers that serve them. Loaded once at
// startup from a YAML file so fleet changes never require a code change.
type Registry struct {
	Workers []domain.WorkerIdentity `yaml:"workers"`
}

func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker registry: %w", err)
	}
	var r Registry
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse worker registry: %w", err)
	}
	for _, w := range r.Workers {
		if w.Name == "" || w.Address == "" {
			return nil, fmt.Errorf("worker registry: every worker needs name and address")
		}
	}
	return &r, nil
}

// WorkersFor returns the workers offering a capability, in stable name order.
func (r *Registry) WorkersFor(capability string) []domain.WorkerIdentity {
	var out []domain.WorkerIdentity
	for _, w := range r.Workers {
		if w.Offers(capability) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Assignment is one planned worker exchange: the capabilities a single
// worker will run for a task, with the tools those capabilities imply.
type Assignment struct {
	Worker       domain.WorkerIdentity
	Capabilities []string
	Tools        []string
}

// Plan resolves a capability set onto workers. Each capability goes to the
// first worker (by name) that offers it; capabilities offered by nobody come
// back in the second return so the caller can represent them as never
// attempted instead of silently dropping them.
func (r *Registry) Plan(capabilitySet []string) ([]Assignment, []string) {
	byWorker := make(map[string]*Assignment)
	var unresolved []string

	caps := append([]string(nil), capabilitySet...)
	sort.Strings(caps)
	for _, capability := range caps {
		candidates := r.WorkersFor(capability)
		if len(candidates) == 0 {
			unresolved = append(unresolved, capability)
			continue
		}
		w := candidates[0]
		a, ok := byWorker[w.Name]
		if !ok {
			a = &Assignment{Worker: w}
			byWorker[w.Name] = a
		}
		a.Capabilities = append(a.Capabilities, capability)
		a.Tools = append(a.Tools, w.ToolsFor(capability)...)
	}

	names := make([]string, 0, len(byWorker))
	for n := range byWorker {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Assignment, 0, len(names))
	for _, n := range names {
		out = append(out, *byWorker[n])
	}
	return out, unresolved
}
