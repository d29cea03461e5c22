package entity

// RegionKind names a family of regions that share a Processing Flag.
type RegionKind string

const (
	RegionTable RegionKind = "table"
	RegionPopup RegionKind = "popup"
)

// RegionSpec locates a region in the live document. A region is identified by
// its selectors, never by a stored node, since the host page may destroy and
// recreate it at any time.
type RegionSpec struct {
	Kind RegionKind `json:"kind"`

	// Root selects the region itself, e.g. "table.table-leaderboard".
	Root string `json:"root"`
	// Header selects the row that receives the extra header cell. Empty means
	// the region has no header.
	Header      string `json:"header,omitempty"`
	HeaderLabel string `json:"header_label,omitempty"`
	// Targets selects the enrichment targets inside Root.
	Targets string `json:"targets"`
	// KeyLink selects the anchor inside a target whose href is the external key.
	KeyLink string `json:"key_link"`
	// KeyPattern is a regular expression the href must match to count as a key.
	KeyPattern string `json:"key_pattern,omitempty"`
	// SlotTag is the element appended to a target to hold its annotation.
	SlotTag string `json:"slot_tag"`
	// Selection selects the sub-region describing the current selection. Empty
	// disables the discard-on-change watch.
	Selection string `json:"selection,omitempty"`

	// Exclusive regions allow at most one concurrent pass.
	Exclusive bool `json:"exclusive"`
	// Progress regions show completed/N while their batch is in flight.
	Progress bool `json:"progress"`
}

// Target is an element within a region that needs an annotation.
type Target struct {
	Position int    `json:"position"`
	Href     string `json:"href"`
	HasSlot  bool   `json:"has_slot"`
}
