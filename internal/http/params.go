// Package http serves the expense tracker web UI and its JSON endpoints.
package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expensetracker/internal/core"
)

const maxFormBytes = 64 << 10

// queryInt reads key from q, returning def when it is missing or outside
// [lo, hi].
func queryInt(q url.Values, key string, lo, hi, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(key)))
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

// yearParam is the ?year= value, or today's year.
func yearParam(q url.Values, today core.Date) int {
	return queryInt(q, "year", 1900, 9999, today.Year())
}

// monthParams is ?year=&month=, each defaulting to today independently.
func monthParams(q url.Values, today core.Date) (year, month int) {
	return yearParam(q, today), queryInt(q, "month", 1, 12, today.Month())
}

// Fields is a request body flattened to string values. Browsers post
// urlencoded forms; scripts may post a flat JSON object instead.
type Fields struct {
	values url.Values
}

// ReadFields reads at most maxFormBytes of the request body.
func ReadFields(r *http.Request) (Fields, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return Fields{}, err
	}
	body = bytes.TrimSpace(body)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" || bytes.HasPrefix(body, []byte("{")) {
		vals, err := jsonFields(body)
		return Fields{values: vals}, err
	}
	vals, err := url.ParseQuery(string(body))
	return Fields{values: vals}, err
}

func jsonFields(body []byte) (url.Values, error) {
	vals := url.Values{}
	if len(body) == 0 {
		return vals, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	for k, v := range obj {
		switch v := v.(type) {
		case string:
			vals.Set(k, v)
		case json.Number:
			vals.Set(k, v.String())
		case bool:
			vals.Set(k, strconv.FormatBool(v))
		}
	}
	return vals, nil
}

// Get returns the sanitized value for key, or "".
func (f Fields) Get(key string) string {
	return sanitizeInput(f.values.Get(key))
}
