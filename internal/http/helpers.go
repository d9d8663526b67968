package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"khatabook/internal/core"
)

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the caller expects a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// entryRowData feeds the entry-row template. Index -1 marks the row
// template the browser clones.
type entryRowData struct {
	Index      int
	Categories []string
	Kinds      []core.Kind
}

// templateFuncs are available to every page and partial.
var templateFuncs = template.FuncMap{
	"money": core.FormatAmount,
	"rowData": func(i int, categories []string, kinds []core.Kind) entryRowData {
		return entryRowData{Index: i, Categories: categories, Kinds: kinds}
	},
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
}
