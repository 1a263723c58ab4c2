package tutor

import (
	"fmt"
	"strings"
)

// ProblemType selects the kind of problem the learner is working on.
type ProblemType string

const (
	ProblemMath  ProblemType = "math"
	ProblemFermi ProblemType = "fermi"
)

// DefaultProblemType is used when a request does not name one.
const DefaultProblemType = ProblemMath

// ProblemTypes returns the selectable problem types in display order.
func ProblemTypes() []ProblemType {
	return []ProblemType{ProblemMath, ProblemFermi}
}

// ParseProblemType accepts "math" or "fermi" (case-insensitive). An empty
// string yields DefaultProblemType.
func ParseProblemType(s string) (ProblemType, error) {
	switch ProblemType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultProblemType, nil
	case ProblemMath:
		return ProblemMath, nil
	case ProblemFermi:
		return ProblemFermi, nil
	}
	return "", fmt.Errorf("unknown problem type %q (want math or fermi)", s)
}

// Label is the display name of the problem type.
func (p ProblemType) Label() string {
	switch p {
	case ProblemFermi:
		return "Fermi"
	default:
		return "Math"
	}
}
