package repository

import "errors"

var (
	// ErrFetch covers network, redirect and status failures while resolving side data.
	ErrFetch = errors.New("side data fetch failed")
	// ErrActivityNotFound means the redirect did not land on an activity page.
	ErrActivityNotFound = errors.New("activity id not found")
	// ErrRegionGone means a write found no matching target; the host replaced it.
	ErrRegionGone = errors.New("target no longer in document")
)
