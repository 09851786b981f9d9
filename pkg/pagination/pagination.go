package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit/offset, accepting the FHIR-style _count/_offset
// spellings first. Out of range values fall back to the defaults.
func FromContext(c echo.Context) Params {
	limit := firstPositive(c, "_count", "limit")
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Limit: limit, Offset: firstPositive(c, "_offset", "offset")}
}

func firstPositive(c echo.Context, names ...string) int {
	for _, name := range names {
		if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Next    string      `json:"next,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// WithNext sets Next to the request URL advanced by one page when more
// results remain.
func (r *Response) WithNext(u *url.URL) *Response {
	if !r.HasMore || u == nil {
		return r
	}
	q := u.Query()
	q.Del("_count")
	q.Del("_offset")
	q.Set("limit", strconv.Itoa(r.Limit))
	q.Set("offset", strconv.Itoa(r.Offset+r.Limit))
	next := url.URL{Path: u.Path, RawQuery: q.Encode()}
	r.Next = next.String()
	return r
}
