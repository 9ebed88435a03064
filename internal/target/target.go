// Package target classifies command-line targets before any network work.
package target

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMalformedTarget marks a URL whose shape matches neither a listing nor
// an item page.
var ErrMalformedTarget = errors.New("malformed target")

// Kind distinguishes the three shapes of work a worker accepts.
type Kind int

const (
	// KindItem is a single content page, e.g. https://host/comic/name/chapter.
	KindItem Kind = iota
	// KindListing is an index page, e.g. https://host/comic/name.
	KindListing
	// KindBatch is a local file holding one item URL per line.
	KindBatch
)

// Listing URLs carry four path separators, item URLs five. Anything else is
// rejected before the renderer ever sees it.
const (
	listingSlashCount = 4
	itemSlashCount    = 5
)

// Target is a classified unit of work.
type Target struct {
	Kind Kind
	Raw  string
}

// Classify resolves a raw argument into a Target. A path naming an existing
// file is a batch of item URLs; otherwise the URL's separator count decides
// between listing and item, and every other count fails with
// ErrMalformedTarget.
func Classify(raw string) (Target, error) {
	if info, err := os.Stat(raw); err == nil && !info.IsDir() {
		return Target{Kind: KindBatch, Raw: raw}, nil
	}

	switch strings.Count(raw, "/") {
	case listingSlashCount:
		return Target{Kind: KindListing, Raw: raw}, nil
	case itemSlashCount:
		return Target{Kind: KindItem, Raw: raw}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q is neither an item page nor a listing", ErrMalformedTarget, raw)
	}
}

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindListing:
		return "listing"
	case KindBatch:
		return "batch"
	default:
		return "unknown"
	}
}
