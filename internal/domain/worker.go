package domain

// CapabilitySpec names one analysis capability a worker offers and the tools
// it runs for it. Tool names are the keys of the consolidated tool status map.
type CapabilitySpec struct {
	Name  string   `yaml:"name" json:"name"`
	Tools []string `yaml:"tools" json:"tools"`
}

// WorkerIdentity describes one independently deployed analysis worker.
type WorkerIdentity struct {
	Name         string           `yaml:"name" json:"name"`
	Address      string           `yaml:"address" json:"address"`
	Capabilities []CapabilitySpec `yaml:"capabilities" json:"capabilities"`
}

// Offers reports whether the worker serves the named capability.
func (w WorkerIdentity) Offers(capability string) bool {
	for _, c := range w.Capabilities {
		if c.Name == capability {
			return true
		}
	}
	return false
}

// ToolsFor returns the tools the worker runs for the named capability.
func (w WorkerIdentity) ToolsFor(capability string) []string {
	for _, c := range w.Capabilities {
		if c.Name == capability {
			return c.Tools
		}
	}
	return nil
}
