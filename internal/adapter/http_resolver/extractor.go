package http_resolver

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/enricher-service/internal/entity"
)

const (
	thumbnailListSelector = "div[data-react-class='MediaThumbnailList']"
	thumbnailPropsAttr    = "data-react-props"

	SizeLarge     = "large"
	SizeThumbnail = "thumbnail"
)

type thumbnailProps struct {
	Items []struct {
		Large     string `json:"large"`
		Thumbnail string `json:"thumbnail"`
	} `json:"items"`
}

// ExtractPhotos parses an activity page and returns the photo URLs of the
// requested size together with the state of the embedded payload.
func ExtractPhotos(body io.Reader, size string) ([]string, entity.PayloadState, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, "", err
	}

	div := doc.Find(thumbnailListSelector).First()
	if div.Length() == 0 {
		return []string{}, entity.PayloadMissing, nil
	}
	raw, ok := div.Attr(thumbnailPropsAttr)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}, entity.PayloadMissing, nil
	}

	var props thumbnailProps
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return []string{}, entity.PayloadMalformed, nil
	}

	photos := make([]string, 0, len(props.Items))
	for _, item := range props.Items {
		u := item.Large
		if size == SizeThumbnail {
			u = item.Thumbnail
		}
		if u = strings.TrimSpace(u); u != "" {
			photos = append(photos, u)
		}
	}
	return photos, entity.PayloadFound, nil
}
