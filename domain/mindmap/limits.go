package mindmap

// Limits are the structural bounds the merge engine enforces on every
// write. They are runtime-tunable through the config watcher; the merge
// engine reads a consistent copy per operation.
type Limits struct {
	MaxLabelLength int     `json:"maxLabelLength" yaml:"maxLabelLength"`
	MaxCoordinate  float64 `json:"maxCoordinate" yaml:"maxCoordinate"`
	MaxNodesPerMap int     `json:"maxNodesPerMap" yaml:"maxNodesPerMap"`
	MaxEdgesPerMap int     `json:"maxEdgesPerMap" yaml:"maxEdgesPerMap"`
}

// DefaultLimits returns the shipped bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxLabelLength: 5000,
		MaxCoordinate:  10000,
		MaxNodesPerMap: 10000,
		MaxEdgesPerMap: 20000,
	}
}

// ValidLabel reports whether a label fits the bound.
func (l Limits) ValidLabel(label string) bool {
	return len(label) <= l.MaxLabelLength
}

// ValidPosition reports whether both coordinates are within bounds.
func (l Limits) ValidPosition(x, y float64) bool {
	return x >= -l.MaxCoordinate && x <= l.MaxCoordinate &&
		y >= -l.MaxCoordinate && y <= l.MaxCoordinate
}
