// Package render authors the markup the enricher injects into the page. Both
// document back ends use it, so a slot looks the same in the browser and in a
// static HTML file.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/user/enricher-service/internal/entity"
)

const (
	SlotClass     = "enrich-slot"
	HeaderClass   = "enrich-header"
	ProgressClass = "enrich-progress"
	KeyAttr       = "data-enrich-key"
	RegionAttr    = "data-enrich-region"

	LoadingText = "Loading..."
	EmptyText   = "No Photos"
	ErrorText   = "Error"
)

// SlotSelector matches annotation slots.
const SlotSelector = "." + SlotClass

// HeaderSelector matches the extra header cell.
const HeaderSelector = "." + HeaderClass

// ProgressSelector matches the progress element of one region kind.
func ProgressSelector(kind entity.RegionKind) string {
	return fmt.Sprintf(`.%s[%s="%s"]`, ProgressClass, RegionAttr, kind)
}

// Header returns the extra header cell.
func Header(label string) string {
	if label == "" {
		label = "Photos"
	}
	return fmt.Sprintf(`<th class="%s">%s</th>`, HeaderClass, html.EscapeString(label))
}

// Slot returns a complete slot element holding the annotation for key.
func Slot(tag, key string, a entity.Annotation) string {
	tag = slotTag(tag)
	return fmt.Sprintf(`<%s class="%s" %s="%s">%s</%s>`,
		tag, SlotClass, KeyAttr, html.EscapeString(key), Content(a), tag)
}

// Content returns the inner markup of a slot.
func Content(a entity.Annotation) string {
	switch a.Kind {
	case entity.AnnotationLoading:
		return LoadingText
	case entity.AnnotationEmpty:
		return EmptyText
	case entity.AnnotationPhotos:
		if len(a.Photos) == 0 {
			return EmptyText
		}
		var b strings.Builder
		for _, u := range a.Photos {
			u = html.EscapeString(u)
			fmt.Fprintf(&b, `<a href="%s" target="_blank" rel="noopener">`, u)
			fmt.Fprintf(&b, `<img src="%s" alt="Thumbnail" style="width: 32px; height: 32px; margin-right: 5px;">`, u)
			b.WriteString(`</a>`)
		}
		return b.String()
	default:
		return ErrorText
	}
}

// Progress returns the progress element for a batch of total fetches.
func Progress(kind entity.RegionKind, done, total int) string {
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	return fmt.Sprintf(
		`<div class="%s" %s="%s"><div class="%s-bar" style="width: %d%%; height: 4px; background: #fc4c02;"></div><span>%d/%d</span></div>`,
		ProgressClass, RegionAttr, html.EscapeString(string(kind)), ProgressClass, pct, done, total)
}

// slotTag keeps the slot element to a plain tag name.
func slotTag(tag string) string {
	if tag == "" {
		return "div"
	}
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return "div"
		}
	}
	return tag
}
