// Package extract pulls structured records out of rendered HTML. The
// patterns here are deliberately tied to the page template of the scrape
// target; they match rendered markup, not a generic DOM.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoEntries is returned when a listing page yields no usable rows. The
// caller treats it as a symptom of an incompletely rendered page.
var ErrNoEntries = errors.New("no entries found")

// Entry is one candidate row scraped from a listing page. SeqID is the
// chapter number with dots normalized to hyphens; duplicate postings of the
// same chapter share a SeqID.
type Entry struct {
	Link       string
	SeqID      string
	Title      string
	Popularity int
}

var (
	pageImagePattern = regexp.MustCompile(`<div [a-zA-Z0-9="\s-]+?><img alt=".+?" src="(.+?)" style=.+?</div>`)
	tablePattern     = regexp.MustCompile(`<table.+?>.+?</table>`)
	entryRowPattern  = regexp.MustCompile(`<a class="py-3 .+?" href="(.+?)">.+?` +
		`<span class="font-semibold" title=".+?">Ch\. (\d+\.?\d*)</span>` +
		`<span class=".+?">(.+?)</span>.+?` +
		`<div class="text-sm !no-link">(\d+)</div>.+?</a>`)
	linkNumberPattern = regexp.MustCompile(`-(\d+\.?\d*)-`)
	chapterNumPattern = regexp.MustCompile(`-(\d+)-`)
	slugStripPattern  = regexp.MustCompile(`[^a-z0-9-]+`)
)

// ImageURLs returns the page image sources in document order. Order is the
// output document's page order.
func ImageURLs(html string) []string {
	var urls []string
	for _, m := range pageImagePattern.FindAllStringSubmatch(html, -1) {
		urls = append(urls, m[1])
	}
	return urls
}

// ListingExtractor scans a rendered listing page for chapter rows.
//
// EntryTableIndex and BaseURL encode assumptions about the target template:
// the chapter table is the third table on the page, and relative hrefs hang
// off the site root. Both are plain fields so the assumptions stay visible
// and overridable.
type ListingExtractor struct {
	// EntryTableIndex is the zero-based position of the table holding the
	// chapter rows.
	EntryTableIndex int
	// BaseURL prefixes scheme-less links.
	BaseURL string
}

// NewListingExtractor returns an extractor with the template defaults.
func NewListingExtractor(baseURL string, tableIndex int) *ListingExtractor {
	return &ListingExtractor{BaseURL: baseURL, EntryTableIndex: tableIndex}
}

// Entries scans the listing markup one row at a time, advancing past each
// match so rows come back in page order and malformed trailing markup simply
// ends the scan. Rows whose link embeds a chapter number that disagrees with
// the stated one are dropped as noise.
func (e *ListingExtractor) Entries(html string) ([]Entry, error) {
	tables := tablePattern.FindAllString(html, -1)
	if len(tables) <= e.EntryTableIndex {
		return nil, fmt.Errorf("%w: found %d tables, need index %d", ErrNoEntries, len(tables), e.EntryTableIndex)
	}
	section := tables[e.EntryTableIndex]

	var entries []Entry
	for {
		loc := entryRowPattern.FindStringSubmatchIndex(section)
		if loc == nil {
			break
		}
		link := section[loc[2]:loc[3]]
		seqID := strings.ReplaceAll(section[loc[4]:loc[5]], ".", "-")
		title := strings.TrimSpace(section[loc[6]:loc[7]])
		popularity, err := strconv.Atoi(section[loc[8]:loc[9]])
		section = section[loc[0]+1:]
		if err != nil {
			continue
		}

		if !strings.Contains(link, "https:") {
			link = e.BaseURL + link
		}

		// Cross-check: a chapter number embedded in the link must agree
		// with the stated one, or the row is mismatched listing noise.
		if m := linkNumberPattern.FindStringSubmatch(link); m != nil {
			if strings.ReplaceAll(m[1], ".", "-") != seqID {
				continue
			}
		}

		entries = append(entries, Entry{
			Link:       link,
			SeqID:      seqID,
			Title:      title,
			Popularity: popularity,
		})
	}

	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	return entries, nil
}

// Container extracts the parent listing's name from an item link, e.g.
// "one-piece" out of https://host/comic/one-piece/chapter-url.
func (e *ListingExtractor) Container(link string) (string, error) {
	prefix := e.BaseURL + "/comic/"
	rest, ok := strings.CutPrefix(link, prefix)
	if !ok {
		return "", fmt.Errorf("link %q does not start with %q", link, prefix)
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", fmt.Errorf("link %q has no container segment", link)
	}
	return name, nil
}

// ChapterNumber derives the zero-padded chapter number for an item URL, or
// falls back to the final path segment when the URL embeds no number.
func ChapterNumber(itemURL string) string {
	if m := chapterNumPattern.FindStringSubmatch(itemURL); m != nil {
		return ZeroPad(m[1], 4)
	}
	if i := strings.LastIndex(itemURL, "/"); i >= 0 {
		return itemURL[i+1:]
	}
	return itemURL
}

// SeqPrefix turns a normalized sequence id into the numeric file prefix:
// the primary number zero-padded to 4 digits, plus the sub-number when the
// original chapter had a fractional part ("12-5" -> "0012-5").
func SeqPrefix(seqID string) string {
	parts := strings.SplitN(seqID, "-", 2)
	prefix := ZeroPad(parts[0], 4)
	if len(parts) == 2 {
		prefix += "-" + parts[1]
	}
	return prefix
}

// Slug converts a chapter title into a URL-safe name: lowercased, spaces to
// hyphens, everything outside [a-z0-9-] stripped.
func Slug(title string) string {
	lowered := strings.Map(unicode.ToLower, strings.ReplaceAll(title, " ", "-"))
	return slugStripPattern.ReplaceAllString(lowered, "")
}

// ZeroPad left-pads s with zeros to at least width characters.
func ZeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
