// Package pagination implements the cursor protocol shared by every listing.
//
// A listing takes a page size (limit) and an optional marker, the last key
// the caller has seen. Items are returned in a total, stable order strictly
// after the marker. When more items remain, the page carries the marker for
// the next request; the final page carries none.
//
// Pagination Flow:
//
//	req := pagination.Request{Limit: 100}
//	for {
//	    page, err := svc.ListVaultBlocks(ctx, vaultID, req)
//	    if err != nil {
//	        return err
//	    }
//	    consume(page.Items)
//	    if !page.HasMore {
//	        break
//	    }
//	    req.Marker = page.NextMarker
//	}
//
// Stores are asked for Limit+1 items (see Request.FetchLimit). The extra item
// only signals that another page exists; it is never returned.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrInvalidLimit is returned for a limit that is not a positive integer.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Request selects one page.
type Request struct {
	// Limit is the page size. Always positive after ParseRequest.
	Limit int

	// Marker is the exclusive lower bound; empty starts at the beginning.
	Marker string
}

// FetchLimit is the number of items to ask a store for.
func (r Request) FetchLimit() int {
	return r.Limit + 1
}

// ParseRequest builds a Request from raw query values.
//
// An empty limitStr selects def. Limits above max are clamped to max when
// max > 0.
func ParseRequest(limitStr, marker string, def, max int) (Request, error) {
	limit := def
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			return Request{}, fmt.Errorf("%q: %w", limitStr, ErrInvalidLimit)
		}
		limit = n
	}
	if limit <= 0 {
		return Request{}, fmt.Errorf("%d: %w", limit, ErrInvalidLimit)
	}
	if max > 0 && limit > max {
		limit = max
	}
	return Request{Limit: limit, Marker: marker}, nil
}

// Page is one page of a listing.
type Page[T any] struct {
	// Items holds at most Request.Limit entries, in listing order.
	Items []T

	// NextMarker is the marker for the following page. Empty when HasMore
	// is false.
	NextMarker string

	// HasMore reports whether items remain past this page.
	HasMore bool

	limit int
}

// Paginate cuts a page out of items, which must have been fetched with
// req.FetchLimit() and be sorted. key returns the marker for an item.
func Paginate[T any](items []T, req Request, key func(T) string) *Page[T] {
	page := &Page[T]{Items: items, limit: req.Limit}
	if req.Limit > 0 && len(items) > req.Limit {
		page.Items = items[:req.Limit]
		page.HasMore = true
		page.NextMarker = key(page.Items[len(page.Items)-1])
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}

// NextURL returns the continuation URL for the following page: base with
// its marker and limit query parameters replaced. It returns "" on the
// last page.
func (p *Page[T]) NextURL(base *url.URL) string {
	if !p.HasMore {
		return ""
	}

	next := *base
	q := next.Query()
	q.Set("marker", p.NextMarker)
	q.Set("limit", strconv.Itoa(p.limit))
	next.RawQuery = q.Encode()
	return next.String()
}
