package document

// Snapshot is an immutable view of a Document. Layers are in draw order.
type Snapshot struct {
	Version  uint64
	Width    int
	Height   int
	Selected string
	Layers   []Layer
}

// Find returns the layer with id.
func (s Snapshot) Find(id string) (Layer, bool) {
	for _, l := range s.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Enabled returns the enabled layers in draw order.
func (s Snapshot) Enabled() []Layer {
	out := make([]Layer, 0, len(s.Layers))
	for _, l := range s.Layers {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}
