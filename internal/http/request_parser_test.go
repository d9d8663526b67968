package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"DELETE allowed with multiple", http.MethodDelete, []string{http.MethodDelete, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}

func TestRequireGET(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		if RequireGET(httptest.NewRequest(m, "/test", nil)) != nil {
			t.Errorf("RequireGET should allow %s", m)
		}
	}
	if RequireGET(httptest.NewRequest(http.MethodPost, "/test", nil)) == nil {
		t.Error("RequireGET should reject POST requests")
	}
}

func TestRows_IndexedForm(t *testing.T) {
	form := url.Values{}
	form.Set("rows[1][description]", "pay")
	form.Set("rows[1][amount]", "5000")
	form.Set("rows[0][category]", "Food")
	form.Set("rows[0][description]", "  lunch ")
	form.Set("rows[0][Type]", "Expense")
	form.Set("rows[0][amount]", "150")
	form.Set("rows[x][amount]", "1")
	form.Set("rows[2]", "ignored")
	form.Set("csrf", "ignored")

	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rows, err := NewRequestBodyParser(req).Rows()
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2: %v", len(rows), rows)
	}
	if rows[0].Get("description") != "lunch" || rows[0].Get("type") != "Expense" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1].Get("amount") != "5000" || rows[1].Get("category") != "" {
		t.Errorf("unexpected second row: %v", rows[1])
	}
}

func TestRows_JSONArray(t *testing.T) {
	body := `[{"category":"Food","description":"lunch","type":"Expense","amount":150.5},
	          {"Category":"Salary","Description":"pay","Type":"Income","Amount":"5000"}]`
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	rows, err := p.Rows()
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if !p.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if got := rows[0].Get("amount"); got != "150.5" {
		t.Errorf("amount = %q, want 150.5", got)
	}
	if got := rows[1].Get("category"); got != "Salary" {
		t.Errorf("category = %q, want Salary", got)
	}
}

func TestRows_JSONObjectWithRows(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(`{"rows":[{"description":"bus"}]}`))
	rows, err := NewRequestBodyParser(req).Rows()
	if err != nil || len(rows) != 1 || rows[0].Get("description") != "bus" {
		t.Fatalf("unexpected rows=%v err=%v", rows, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(`{"rows":"nope"}`))
	if _, err := NewRequestBodyParser(req).Rows(); err == nil {
		t.Error("expected error for non-array rows")
	}
}

func TestRows_TooMany(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i <= maxBatchRows; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"description":"x"}`)
	}
	b.WriteString("]")
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(b.String()))
	if _, err := NewRequestBodyParser(req).Rows(); err == nil {
		t.Error("expected error for oversized batch")
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(`[{"description":`))
	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestSplitRowKey(t *testing.T) {
	tests := []struct {
		key       string
		wantIdx   int
		wantField string
		wantOK    bool
	}{
		{"rows[0][amount]", 0, "amount", true},
		{"rows[12][Description]", 12, "description", true},
		{"rows[-1][amount]", 0, "", false},
		{"rows[0][]", 0, "", false},
		{"rows[0][a][b]", 0, "", false},
		{"row[0][amount]", 0, "", false},
	}
	for _, tt := range tests {
		idx, field, ok := splitRowKey(tt.key)
		if ok != tt.wantOK || idx != tt.wantIdx || field != tt.wantField {
			t.Errorf("splitRowKey(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.key, idx, field, ok, tt.wantIdx, tt.wantField, tt.wantOK)
		}
	}
}
