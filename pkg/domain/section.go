package domain

// Section is an independently edited pipeline graph. Sections are loaded
// in bulk at startup and persisted individually as full documents; no
// cross-section edges exist.
type Section struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Group string  `json:"group"`
	Nodes []*Node `json:"nodes"`

	InputConfig  map[string]any `json:"inputConfig,omitempty"`
	OutputConfig map[string]any `json:"outputConfig,omitempty"`
}

// Node returns the node with the given id, or nil.
func (s *Section) Node(id string) *Node {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Clone returns a deep copy of the section document.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	c := *s
	c.Nodes = make([]*Node, len(s.Nodes))
	for i, n := range s.Nodes {
		c.Nodes[i] = n.Clone()
	}
	c.InputConfig = cloneConfig(s.InputConfig)
	c.OutputConfig = cloneConfig(s.OutputConfig)
	return &c
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
