package roundtrip

// LossClass represents how faithfully serialized output reproduced its
// source text.
type LossClass string

const (
	// LossL0 means byte-identical output.
	LossL0 LossClass = "L0"

	// LossL1 means only whitespace or blank lines differ.
	LossL1 LossClass = "L1"

	// LossL2 means the same set of content lines, possibly reordered or
	// deduplicated.
	LossL2 LossClass = "L2"

	// LossL3 means content was lost or altered.
	LossL3 LossClass = "L3"
)

// Level returns the numeric level (0 best, 3 worst). Unknown classes rank
// as the worst.
func (l LossClass) Level() int {
	switch l {
	case LossL0:
		return 0
	case LossL1:
		return 1
	case LossL2:
		return 2
	default:
		return 3
	}
}

// IsLossless reports byte-identical output.
func (l LossClass) IsLossless() bool {
	return l == LossL0
}

// IsAcceptable reports whether content survived, which is the bar a
// round-trip check must clear.
func (l LossClass) IsAcceptable() bool {
	return l.Level() <= LossL2.Level()
}
