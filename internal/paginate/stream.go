package paginate

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"net/url"
)

// Extract splits a decoded page into its items and the next cursor.
// An empty cursor ends the sequence.
type Extract[P, T any] func(page P) (items []T, next string)

// CursorFunc derives the request for the page identified by cursor.
type CursorFunc func(tmpl Request, cursor string) (Request, error)

// QueryCursor sets the cursor as the named query parameter.
func QueryCursor(param string) CursorFunc {
	return func(tmpl Request, cursor string) (Request, error) {
		q := url.Values{}
		if tmpl.Query != nil {
			q = maps.Clone(tmpl.Query)
		}
		q.Set(param, cursor)
		tmpl.Query = q
		return tmpl, nil
	}
}

// LinkCursor treats the cursor as the absolute URL of the next page.
func LinkCursor(tmpl Request, cursor string) (Request, error) {
	u, err := url.Parse(cursor)
	if err != nil || !u.IsAbs() {
		return Request{}, fmt.Errorf("invalid next link %q", cursor)
	}
	tmpl.URL = cursor
	tmpl.Query = nil
	return tmpl, nil
}

// Stream returns the items of every page, requesting page n+1 only after
// page n has been decoded and its items consumed. A failed page yields a
// single error and ends the sequence. Each range over the result starts again
// from the first page.
func Stream[P, T any](ctx context.Context, c *Client, tmpl Request, extract Extract[P, T], next CursorFunc) iter.Seq2[T, error] {
	if next == nil {
		next = QueryCursor("cursor")
	}
	return func(yield func(T, error) bool) {
		var zero T
		req := tmpl
		prev := ""
		for {
			var page P
			if err := c.Do(ctx, req, &page); err != nil {
				yield(zero, err)
				return
			}
			items, cursor := extract(page)
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if cursor == "" {
				return
			}
			if cursor == prev {
				yield(zero, fmt.Errorf("pagination cursor %q did not advance", cursor))
				return
			}
			prev = cursor

			var err error
			if req, err = next(tmpl, cursor); err != nil {
				yield(zero, err)
				return
			}
		}
	}
}

// Collect drains seq, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
