package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"khatabook/internal/cache"
	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/memory"
	"khatabook/internal/middleware/ratelimit"
	"khatabook/internal/services"
	"khatabook/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testOptions struct {
	store     Pinger
	rateLimit int
}

func newTestServer(t *testing.T, opts testOptions) *Server {
	t.Helper()
	store := memory.New()
	var pinger Pinger = store
	if opts.store != nil {
		pinger = opts.store
	}

	srv, err := NewServer(":0", Dependencies{
		Auth:      services.NewAuthService(store, bcrypt.MinCost),
		Ledger:    services.NewLedgerService(store, store, nil, cache.NewLRUCache[core.Summary](16, time.Minute)),
		Sessions:  session.NewManager([]byte(testSecret), time.Hour),
		Store:     pinger,
		Logger:    &log.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		RateLimit: ratelimit.Config{RequestsPerMinute: opts.rateLimit},
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

type requestOption func(r *http.Request)

func withCookie(c *http.Cookie) requestOption {
	return func(r *http.Request) { r.AddCookie(c) }
}

func asHTMX() requestOption {
	return func(r *http.Request) { r.Header.Set("HX-Request", "true") }
}

func do(srv *Server, method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if strings.HasPrefix(strings.TrimSpace(body), "[") || strings.HasPrefix(strings.TrimSpace(body), "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func credentials(username, password string) string {
	return url.Values{"username": {username}, "password": {password}}.Encode()
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", session.CookieName)
	return nil
}

// login registers username and returns its session cookie.
func login(t *testing.T, srv *Server, username string) *http.Cookie {
	t.Helper()
	rec := do(srv, http.MethodPost, "/register", credentials(username, "secret"), asHTMX())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(srv, http.MethodPost, "/login", credentials(username, "secret"), asHTMX())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Create Account")
	assert.NotContains(t, rec.Body.String(), "Add Transactions")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found.")
	assert.Equal(t, http.StatusMethodNotAllowed, do(srv, http.MethodPost, "/", "").Code)

	rec = do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)

	rec = do(srv, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyz_StoreDown(t *testing.T) {
	srv := newTestServer(t, testOptions{store: failingPinger{}})

	rec := do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(srv, http.MethodPost, "/register", credentials("asha", "s3cret"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account created! Please login.")

	rec = do(srv, http.MethodPost, "/register", credentials("asha", "other"), asHTMX())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `<div class="error">Username already exists.</div>`, rec.Body.String())

	rec = do(srv, http.MethodPost, "/register", credentials("  ", "x"), asHTMX())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(srv, http.MethodPost, "/register", credentials("  ", "x"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username and password are required.")

	rec = do(srv, http.MethodPost, "/login", credentials("asha", "wrong"), asHTMX())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")

	rec = do(srv, http.MethodPost, "/login", credentials("nobody", "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")

	rec = do(srv, http.MethodPost, "/login", credentials("asha", "s3cret"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)

	rec = do(srv, http.MethodGet, "/", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome, asha!")
	assert.Contains(t, rec.Body.String(), "Add Transactions")
	assert.Contains(t, rec.Body.String(), `name="rows[2][amount]"`)
}

func TestLogin_HTMXRedirect(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	do(srv, http.MethodPost, "/register", credentials("ravi", "pw"), asHTMX())

	rec := do(srv, http.MethodPost, "/login", credentials("ravi", "pw"), asHTMX())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))

	assert.Equal(t, http.StatusMethodNotAllowed, do(srv, http.MethodGet, "/login", "").Code)
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cookie := login(t, srv, "asha")

	rec := do(srv, http.MethodPost, "/logout", "", withCookie(cookie))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestRequireSession(t *testing.T) {
	srv := newTestServer(t, testOptions{})

	rec := do(srv, http.MethodGet, "/ui/summary", "", asHTMX())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))

	rec = do(srv, http.MethodGet, "/ui/summary", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = do(srv, http.MethodGet, "/api/charts", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = do(srv, http.MethodGet, "/export/transactions.csv", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	forged := &http.Cookie{Name: session.CookieName, Value: "not-a-jwt"}
	rec = do(srv, http.MethodPost, "/transactions", "rows[0][description]=x", asHTMX(), withCookie(forged))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Less(t, sessionCookie(t, rec).MaxAge, 0, "invalid cookie must be cleared")
}

func saveForm(rows ...[4]string) string {
	form := url.Values{}
	for i, r := range rows {
		prefix := "rows[" + string(rune('0'+i)) + "]"
		form.Set(prefix+"[category]", r[0])
		form.Set(prefix+"[description]", r[1])
		form.Set(prefix+"[type]", r[2])
		form.Set(prefix+"[amount]", r[3])
	}
	return form.Encode()
}

type chartsPayload struct {
	Empty  bool `json:"empty"`
	ByType []struct {
		Label  string      `json:"label"`
		Amount json.Number `json:"amount"`
	} `json:"by_type"`
	ByCategory []struct {
		Label  string      `json:"label"`
		Amount json.Number `json:"amount"`
	} `json:"by_category"`
	DailyTrend []struct {
		Label  string      `json:"label"`
		Amount json.Number `json:"amount"`
	} `json:"daily_trend"`
}

func TestSaveTransactions_SummaryAndCharts(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cookie := login(t, srv, "asha")

	rec := do(srv, http.MethodGet, "/ui/summary", "", asHTMX(), withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No transactions yet. Add some above!")

	body := saveForm(
		[4]string{"Food", "lunch", "Expense", "150"},
		[4]string{"Salary", "pay", "Income", "5000"},
		[4]string{"Other", "   ", "Expense", "not-parsed"},
	)
	rec = do(srv, http.MethodPost, "/transactions", body, asHTMX(), withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "2 transaction(s) saved!")
	assert.Contains(t, rec.Header().Get("HX-Trigger"), `"ledger:saved":{"count":2}`)
	assert.Contains(t, rec.Header().Get("HX-Trigger"), `"form:reset"`)
	assert.Contains(t, rec.Header().Get("HX-Trigger"), `"show-notification"`)

	rec = do(srv, http.MethodGet, "/ui/summary", "", asHTMX(), withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "₹5000.00")
	assert.Contains(t, html, "₹150.00")
	assert.Contains(t, html, "₹4850.00")
	assert.Contains(t, html, "lunch")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(srv, http.MethodGet, "/api/charts", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	var charts chartsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &charts))
	assert.False(t, charts.Empty)
	require.Len(t, charts.ByType, 2)
	assert.Equal(t, "Expense", charts.ByType[0].Label)
	assert.Equal(t, "150.00", charts.ByType[0].Amount.String())
	assert.Equal(t, "Income", charts.ByType[1].Label)
	assert.Equal(t, "5000.00", charts.ByType[1].Amount.String())
	require.Len(t, charts.ByCategory, 1)
	assert.Equal(t, "Food", charts.ByCategory[0].Label)
	require.Len(t, charts.DailyTrend, 1)
	assert.Equal(t, "150.00", charts.DailyTrend[0].Amount.String())
}

func TestSaveTransactions_Validation(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cookie := login(t, srv, "asha")

	rec := do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"Food", "lunch", "Expense", "-5"}), asHTMX(), withCookie(cookie))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Row 1: amount must be a number of at least 0.")

	rec = do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"Food", "ok", "Expense", "1"}, [4]string{"Food", "bad", "Gift", "1"}), asHTMX(), withCookie(cookie))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Row 2: type must be Income or Expense.")

	rec = do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"", "taxi", "Expense", "1"}), asHTMX(), withCookie(cookie))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Row 1: category is required.")

	rec = do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"Food", "", "Expense", "0"}), asHTMX(), withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nothing to save")
	assert.NotContains(t, rec.Header().Get("HX-Trigger"), "ledger:saved")
	assert.Contains(t, rec.Header().Get("HX-Trigger"), `"type":"info"`)

	rec = do(srv, http.MethodGet, "/transactions", "", withCookie(cookie))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(srv, http.MethodGet, "/api/charts", "", withCookie(cookie))
	var charts chartsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &charts))
	assert.True(t, charts.Empty, "rejected batches must not be stored")
}

func TestSaveTransactions_JSON(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cookie := login(t, srv, "asha")

	rec := do(srv, http.MethodPost, "/transactions",
		`[{"category":"Travel","description":"bus","type":"expense","amount":12.5},{"description":""}]`,
		withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"saved":1}`, rec.Body.String())

	rec = do(srv, http.MethodPost, "/transactions", `[{"category":"Travel","description":"bus","type":"expense","amount":"abc"}]`,
		withCookie(cookie))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"Row 1: amount must be a number of at least 0."}`, rec.Body.String())
}

func TestLedgersAreIsolated(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	asha := login(t, srv, "asha")
	ravi := login(t, srv, "ravi")

	rec := do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"Rent", "flat", "Expense", "12000"}), asHTMX(), withCookie(asha))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/ui/summary", "", asHTMX(), withCookie(ravi))
	assert.Contains(t, rec.Body.String(), "No transactions yet.")
	assert.NotContains(t, rec.Body.String(), "flat")
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, testOptions{})
	cookie := login(t, srv, "asha")

	rec := do(srv, http.MethodGet, "/export/transactions.csv", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "date,category,description,type,amount\n", rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="transactions.csv"`)

	do(srv, http.MethodPost, "/transactions",
		saveForm([4]string{"Food", "chai, samosa", "Expense", "40"}), asHTMX(), withCookie(cookie))

	rec = do(srv, http.MethodGet, "/export/transactions.csv", "", withCookie(cookie))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], `,Food,"chai, samosa",Expense,40.00`), lines[1])

	rec = do(srv, http.MethodGet, "/export/transactions.xlsx", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="transactions.xlsx"`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestRateLimitOnPost(t *testing.T) {
	srv := newTestServer(t, testOptions{rateLimit: 2})

	for i := 0; i < 2; i++ {
		rec := do(srv, http.MethodPost, "/login", credentials("x", "y"), asHTMX())
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(srv, http.MethodPost, "/login", credentials("x", "y"), asHTMX())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/healthz", "").Code, "GET routes are not limited")

	stats := srv.Stats()
	assert.EqualValues(t, 4, stats.Requests)
	assert.EqualValues(t, 1, stats.RateLimited)
	assert.EqualValues(t, 1, stats.TrackedClients)
}

func TestChartsFromSummary_Empty(t *testing.T) {
	raw, err := json.Marshal(chartsFromSummary(core.Summarize(nil)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"empty":true,"by_type":[],"by_category":[],"daily_trend":[]}`, string(raw))
}
