package entity

// MutationEventKind distinguishes plain structural changes from a change in
// a watched selection sub-region.
type MutationEventKind string

const (
	EventStructure MutationEventKind = "structure"
	EventSelection MutationEventKind = "selection"
)

// MutationEvent is a "dirty" notification from the document. Its payload is
// not interpreted beyond the kind and, for selection events, the region.
type MutationEvent struct {
	Kind   MutationEventKind `json:"kind"`
	Region RegionKind        `json:"region,omitempty"`
}
