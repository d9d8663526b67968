// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for common
// form parsing, entry row extraction, and input sanitization patterns.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// maxBodyBytes bounds every request body read by the parser.
	maxBodyBytes = 1 << 20
	// maxBatchRows bounds the number of entry rows in one save.
	maxBatchRows = 500
)

var errTooManyRows = fmt.Errorf("too many rows (max %d)", maxBatchRows)

// RawRow holds the submitted string fields of one entry row, keyed by
// field name (category, description, type, amount).
type RawRow map[string]string

// Get returns the sanitized value of a field.
func (r RawRow) Get(field string) string {
	return strings.TrimSpace(sanitizeInput(r[field]))
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]interface{}
	jsonRows []map[string]interface{}
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errors.New("request body too large")
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		p.err = decodeJSON(trimmed, &p.jsonData)
		return p.err
	case '[':
		p.err = decodeJSON(trimmed, &p.jsonRows)
		if p.err == nil && p.jsonRows == nil {
			p.jsonRows = []map[string]interface{}{}
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetSecret returns a value exactly as submitted. Passwords must not be
// trimmed or sanitized.
func (p *RequestBodyParser) GetSecret(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key].(string); ok {
			return val
		}
		return ""
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// Rows returns the submitted entry rows in index order. A JSON body must
// be an array of objects, or an object with a "rows" array. Form bodies
// use indexed keys such as rows[0][amount].
func (p *RequestBodyParser) Rows() ([]RawRow, error) {
	if err := p.Parse(); err != nil {
		return nil, err
	}
	switch {
	case p.jsonRows != nil:
		return jsonToRows(p.jsonRows)
	case p.jsonData != nil:
		raw, ok := p.jsonData["rows"].([]interface{})
		if !ok {
			return nil, errors.New(`expected a "rows" array`)
		}
		objs := make([]map[string]interface{}, 0, len(raw))
		for i, item := range raw {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("row %d is not an object", i+1)
			}
			objs = append(objs, obj)
		}
		return jsonToRows(objs)
	default:
		return parseIndexedRows(p.formData)
	}
}

func jsonToRows(objs []map[string]interface{}) ([]RawRow, error) {
	if len(objs) > maxBatchRows {
		return nil, errTooManyRows
	}
	rows := make([]RawRow, 0, len(objs))
	for _, obj := range objs {
		row := RawRow{}
		for k, v := range obj {
			row[strings.ToLower(k)] = stringValue(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseIndexedRows collects rows[i][field] form keys. Gaps in the index
// sequence are allowed; rows come back sorted by index.
func parseIndexedRows(form url.Values) ([]RawRow, error) {
	byIndex := map[int]RawRow{}
	for key, vals := range form {
		idx, field, ok := splitRowKey(key)
		if !ok || len(vals) == 0 {
			continue
		}
		row, exists := byIndex[idx]
		if !exists {
			if len(byIndex) >= maxBatchRows {
				return nil, errTooManyRows
			}
			row = RawRow{}
			byIndex[idx] = row
		}
		row[field] = vals[0]
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	rows := make([]RawRow, 0, len(indexes))
	for _, idx := range indexes {
		rows = append(rows, byIndex[idx])
	}
	return rows, nil
}

// splitRowKey parses "rows[12][amount]" into (12, "amount").
func splitRowKey(key string) (int, string, bool) {
	rest, ok := strings.CutPrefix(key, "rows[")
	if !ok {
		return 0, "", false
	}
	idxStr, rest, ok := strings.Cut(rest, "][")
	if !ok {
		return 0, "", false
	}
	field, ok := strings.CutSuffix(rest, "]")
	if !ok || field == "" || strings.ContainsAny(field, "[]") {
		return 0, "", false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		return 0, "", false
	}
	return idx, strings.ToLower(field), true
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil || p.jsonRows != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET accepts GET and HEAD.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
