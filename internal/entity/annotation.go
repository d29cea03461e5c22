package entity

import "time"

// TargetState is the per-target lifecycle:
// Unseen -> Placeholder -> ResolvedSuccess | ResolvedError.
type TargetState string

const (
	StateUnseen          TargetState = "unseen"
	StatePlaceholder     TargetState = "placeholder"
	StateResolvedSuccess TargetState = "resolved_success"
	StateResolvedError   TargetState = "resolved_error"
)

// Resolved reports whether the state is terminal.
func (s TargetState) Resolved() bool {
	return s == StateResolvedSuccess || s == StateResolvedError
}

// AnnotationKind selects what a slot displays.
type AnnotationKind string

const (
	AnnotationLoading AnnotationKind = "loading"
	AnnotationPhotos  AnnotationKind = "photos"
	AnnotationEmpty   AnnotationKind = "empty"
	AnnotationError   AnnotationKind = "error"
)

// Annotation is the content written into a target's slot.
type Annotation struct {
	Kind   AnnotationKind
	Photos []string
}

// AnnotationFor maps resolved side data to the annotation that displays it.
func AnnotationFor(data *SideData) Annotation {
	if data == nil || len(data.Photos) == 0 {
		return Annotation{Kind: AnnotationEmpty}
	}
	return Annotation{Kind: AnnotationPhotos, Photos: data.Photos}
}

// TargetStatus is a read-only view of one ledger entry.
type TargetStatus struct {
	Region       RegionKind   `json:"region"`
	Key          string       `json:"key"`
	State        TargetState  `json:"state"`
	Photos       int          `json:"photos"`
	PayloadState PayloadState `json:"payload_state,omitempty"`
	Error        string       `json:"error,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
