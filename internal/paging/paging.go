// Package paging implements cursor based pagination over a stable total
// order of internal row ids.
//
// A Request uses either First/After (forward) or Last/Before (backward).
// Stores fetch one row more than requested to detect further pages, and
// backward pages are fetched in opposite order and reversed before they are
// returned, so edges are always in query order.
package paging

import (
	"context"

	"strata/internal/domain"
)

const (
	DefaultCount = 25
	MaxCount     = 100
)

// Request is a client pagination request. Nil counts are unset.
type Request struct {
	First  *int   `json:"first,omitempty"`
	After  string `json:"after,omitempty"`
	Last   *int   `json:"last,omitempty"`
	Before string `json:"before,omitempty"`
}

// First returns a forward request for n items
func First(n int, after string) Request {
	return Request{First: &n, After: after}
}

// Last returns a backward request for n items
func Last(n int, before string) Request {
	return Request{Last: &n, Before: before}
}

// CursorCodec turns row ids into opaque cursors and back.
// Storage adapters implement it.
type CursorCodec interface {
	EncodeCursor(id int64) string
	DecodeCursor(cursor string) (int64, error)
}

// Query is a resolved request, ready to be turned into SQL
type Query struct {
	Count      int
	Backward   bool   // Paging with last/before
	Descending bool   // The query order itself is reversed
	After      *int64 // Exclusive lower bound in query order
	Before     *int64 // Exclusive upper bound in query order
}

// Resolve validates a request and decodes its cursors
func Resolve(req Request, codec CursorCodec, descending bool) (*Query, error) {
	if req.First != nil && req.Last != nil {
		return nil, domain.BadRequest("paging: first and last can't be used together")
	}

	q := &Query{Count: DefaultCount, Descending: descending}
	switch {
	case req.First != nil:
		if *req.First < 0 {
			return nil, domain.BadRequest("paging: first must not be negative (%d)", *req.First)
		}
		q.Count = *req.First
	case req.Last != nil:
		if *req.Last < 0 {
			return nil, domain.BadRequest("paging: last must not be negative (%d)", *req.Last)
		}
		q.Count = *req.Last
		q.Backward = true
	case req.Before != "" && req.After == "":
		q.Backward = true
	}
	if q.Count > MaxCount {
		q.Count = MaxCount
	}

	var err error
	if q.After, err = decode(codec, req.After); err != nil {
		return nil, err
	}
	if q.Before, err = decode(codec, req.Before); err != nil {
		return nil, err
	}
	return q, nil
}

func decode(codec CursorCodec, cursor string) (*int64, error) {
	if cursor == "" {
		return nil, nil
	}
	id, err := codec.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.BadRequest("paging: invalid cursor %q", cursor)
	}
	return &id, nil
}

// Limit is the number of rows to fetch, one more than requested
func (q *Query) Limit() int {
	return q.Count + 1
}

// FetchDescending reports whether rows must be fetched in descending id order
func (q *Query) FetchDescending() bool {
	return q.Descending != q.Backward
}

// Where returns the cursor conditions on the id column with ? placeholders
func (q *Query) Where(column string) ([]string, []any) {
	var conds []string
	var args []any
	gt, lt := " > ?", " < ?"
	if q.Descending {
		gt, lt = lt, gt
	}
	if q.After != nil {
		conds = append(conds, column+gt)
		args = append(args, *q.After)
	}
	if q.Before != nil {
		conds = append(conds, column+lt)
		args = append(args, *q.Before)
	}
	return conds, args
}

// OrderBy returns the ORDER BY clause for the id column
func (q *Query) OrderBy(column string) string {
	if q.FetchDescending() {
		return "ORDER BY " + column + " DESC"
	}
	return "ORDER BY " + column + " ASC"
}

// Row is a fetched node together with its internal id
type Row[T any] struct {
	ID   int64
	Node T
}

// Edge is a node with its cursor
type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

// PageInfo describes the position of a page in the full result
type PageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor"`
	EndCursor       string `json:"endCursor"`
}

// Connection is one page of results
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Build turns fetched rows (in fetch order, up to Limit) into a connection.
// An empty result is a nil connection.
func Build[T any](q *Query, rows []Row[T], codec CursorCodec) *Connection[T] {
	hasMore := len(rows) > q.Count
	if hasMore {
		rows = rows[:q.Count]
	}
	if len(rows) == 0 {
		return nil
	}

	// Backward pages are fetched in reverse, restore query order
	if q.Backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	conn := &Connection[T]{Edges: make([]Edge[T], len(rows))}
	for i, r := range rows {
		conn.Edges[i] = Edge[T]{Cursor: codec.EncodeCursor(r.ID), Node: r.Node}
	}
	conn.PageInfo.StartCursor = conn.Edges[0].Cursor
	conn.PageInfo.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor

	if q.Backward {
		conn.PageInfo.HasPreviousPage = hasMore
		conn.PageInfo.HasNextPage = q.Before != nil
	} else {
		conn.PageInfo.HasNextPage = hasMore
		conn.PageInfo.HasPreviousPage = q.After != nil
	}
	return conn
}

// FetchFunc loads up to q.Limit() rows in the order given by q
type FetchFunc[T any] func(ctx context.Context, q *Query) ([]Row[T], error)

// Page resolves the request, fetches the rows and builds the connection
func Page[T any](ctx context.Context, req Request, codec CursorCodec, descending bool, fetch FetchFunc[T]) (*Connection[T], error) {
	q, err := Resolve(req, codec, descending)
	if err != nil {
		return nil, err
	}
	if q.Count == 0 {
		return nil, nil
	}
	rows, err := fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return Build(q, rows, codec), nil
}

// Map converts the nodes of a connection
func Map[T, U any](conn *Connection[T], fn func(T) U) *Connection[U] {
	if conn == nil {
		return nil
	}
	out := &Connection[U]{Edges: make([]Edge[U], len(conn.Edges)), PageInfo: conn.PageInfo}
	for i, e := range conn.Edges {
		out.Edges[i] = Edge[U]{Cursor: e.Cursor, Node: fn(e.Node)}
	}
	return out
}
