package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// HashKey creates a SHA256 hash of a key string.
// This is useful for creating consistent, safe keys for Redis.
func HashKey(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}
