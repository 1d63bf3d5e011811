package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const singleObjectMime = "application/vnd.pgrst.object+json"

// ErrUnfiltered is returned when an update or delete has no filter; the
// platform would otherwise apply it to every visible row.
var ErrUnfiltered = errors.New("refusing to mutate without a filter")

// Query is a PostgREST request under construction. Methods return the
// receiver so calls chain; Query values are not safe for concurrent use.
type Query struct {
	client  *Client
	table   string
	params  url.Values
	filters int
	single  bool
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, params: url.Values{}}
}

func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq adds a col=eq.value filter.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	q.filters++
	return q
}

// In adds a col=in.(a,b) filter. Values containing reserved characters are
// double-quoted.
func (q *Query) In(column string, values []string) *Query {
	quoted := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsAny(v, ",()\" ") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		quoted[i] = v
	}
	q.params.Add(column, "in.("+strings.Join(quoted, ",")+")")
	q.filters++
	return q
}

// Order sorts by column, descending unless ascending is set.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.params.Set("order", column+"."+dir)
	return q
}

// Single asks for exactly one row as a JSON object instead of an array.
// Zero or several rows produce an *Error with code PGRST116.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) path() string {
	return "/rest/v1/" + url.PathEscape(q.table)
}

func (q *Query) headers(prefer string) map[string]string {
	h := map[string]string{}
	if prefer != "" {
		h["Prefer"] = prefer
	}
	if q.single {
		h["Accept"] = singleObjectMime
	}
	return h
}

// Execute runs a GET and decodes the rows into out.
func (q *Query) Execute(ctx context.Context, out interface{}) error {
	if q.params.Get("select") == "" {
		q.params.Set("select", "*")
	}
	_, err := q.client.do(ctx, request{
		method:  http.MethodGet,
		path:    q.path(),
		query:   q.params,
		headers: q.headers(""),
	}, out)
	if err != nil {
		return fmt.Errorf("select %s: %w", q.table, err)
	}
	return nil
}

// Insert creates row(s) and decodes the representation into out.
func (q *Query) Insert(ctx context.Context, rows interface{}, out interface{}) error {
	return q.write(ctx, http.MethodPost, "insert", rows, out, "return=representation", false)
}

// Upsert inserts row(s), merging on primary key conflicts.
func (q *Query) Upsert(ctx context.Context, rows interface{}, out interface{}) error {
	return q.write(ctx, http.MethodPost, "upsert", rows, out, "return=representation,resolution=merge-duplicates", false)
}

// Update patches the filtered rows with values.
func (q *Query) Update(ctx context.Context, values interface{}, out interface{}) error {
	return q.write(ctx, http.MethodPatch, "update", values, out, "return=representation", true)
}

// Delete removes the filtered rows, decoding the removed rows into out.
func (q *Query) Delete(ctx context.Context, out interface{}) error {
	return q.write(ctx, http.MethodDelete, "delete", nil, out, "return=representation", true)
}

func (q *Query) write(ctx context.Context, method, verb string, body, out interface{}, prefer string, needsFilter bool) error {
	if needsFilter && q.filters == 0 {
		return fmt.Errorf("%s %s: %w", verb, q.table, ErrUnfiltered)
	}
	if out != nil && q.params.Get("select") == "" {
		q.params.Set("select", "*")
	}
	if out == nil {
		prefer = strings.Replace(prefer, "return=representation", "return=minimal", 1)
	}
	_, err := q.client.do(ctx, request{
		method:  method,
		path:    q.path(),
		query:   q.params,
		headers: q.headers(prefer),
		body:    body,
	}, out)
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, q.table, err)
	}
	return nil
}
