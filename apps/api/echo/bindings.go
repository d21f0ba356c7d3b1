package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avsnarang/scholarise/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// queryParams reads typed query parameters, remembering the first malformed one.
type queryParams struct {
	ctx echo.Context
	err error
}

func newQueryParams(ctx echo.Context) *queryParams {
	return &queryParams{ctx: ctx}
}

func (q *queryParams) fail(name, msg string) {
	if q.err == nil {
		q.err = core.NewFieldError(name, msg)
	}
}

func (q *queryParams) String(name string) string {
	return core.CleanString(q.ctx.QueryParam(name))
}

func (q *queryParams) Strings(name string) []string {
	vals, ok := q.ctx.QueryParams()[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = core.CleanString(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (q *queryParams) Bool(name string) *bool {
	val := q.ctx.QueryParam(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		q.fail(name, "must be true or false")
		return nil
	}
	return &b
}

func (q *queryParams) Int(name string) int {
	val := q.ctx.QueryParam(name)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		q.fail(name, "must be a number")
	}
	return n
}

func (q *queryParams) Date(name string) core.Date {
	val := q.ctx.QueryParam(name)
	if val == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(val)
	if err != nil {
		q.fail(name, "must be a date (YYYY-MM-DD)")
	}
	return d
}

func (q *queryParams) Time(name string) time.Time {
	val := q.ctx.QueryParam(name)
	if val == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		q.fail(name, "must be an RFC 3339 timestamp")
	}
	return t.UTC()
}

func (q *queryParams) Err() error { return q.err }

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
