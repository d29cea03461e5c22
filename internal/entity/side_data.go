package entity

// PayloadState records whether the embedded photo payload was found in the
// activity page. Missing and malformed payloads both render as "no photos",
// but they usually mean the page structure changed.
type PayloadState string

const (
	PayloadFound     PayloadState = "found"
	PayloadMissing   PayloadState = "missing"
	PayloadMalformed PayloadState = "malformed"
)

// SideData is the photo list fetched for one external key.
type SideData struct {
	Key        string       `json:"key"`
	ActivityID string       `json:"activity_id"`
	Photos     []string     `json:"photos"`
	Payload    PayloadState `json:"payload"`
}
