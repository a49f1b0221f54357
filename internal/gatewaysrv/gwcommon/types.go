// Package gwcommon provides shared types and context utilities for the
// gateway service: registry generations, caller identity, and workflow
// secret hashing.
package gwcommon

// Generation names one of the two parallel registry copies. Exactly one
// generation is active at any instant.
type Generation string

const (
	GenerationBlue  Generation = "blue"
	GenerationGreen Generation = "green"
)

// Other returns the opposite generation.
func (g Generation) Other() Generation {
	if g == GenerationBlue {
		return GenerationGreen
	}
	return GenerationBlue
}

// Valid reports whether g names a known generation.
func (g Generation) Valid() bool {
	return g == GenerationBlue || g == GenerationGreen
}

// Identity describes the caller of a gateway operation.
type Identity struct {
	AgentID string
	Role    string
}

// Elevated reports whether the identity's role appears in the configured
// elevated-role list.
func (id Identity) Elevated(elevatedRoles []string) bool {
	for _, r := range elevatedRoles {
		if id.Role == r {
			return true
		}
	}
	return false
}
