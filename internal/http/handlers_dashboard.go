package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/session"
)

// dashboardTimeout bounds the store work behind one dashboard partial.
const dashboardTimeout = 7 * time.Second

type summaryData struct {
	Summary      core.Summary
	Transactions []core.Transaction
}

// handleSummary renders the metrics and transaction table partial.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	sum, err := s.ledger.Summary(ctx, sess)
	if err != nil {
		s.dashboardError(w, r, "summary", err)
		return
	}
	var txns []core.Transaction
	if !sum.IsEmpty() {
		if txns, err = s.ledger.List(ctx, sess); err != nil {
			s.dashboardError(w, r, "summary", err)
			return
		}
	}
	s.render(w, r, http.StatusOK, "summary", summaryData{Summary: sum, Transactions: txns})
}

// chartPoint is one labelled value. Amount is a JSON number with two
// decimals so chart libraries can use it directly.
type chartPoint struct {
	Label  string      `json:"label"`
	Amount json.Number `json:"amount"`
}

type chartsResponse struct {
	Empty      bool         `json:"empty"`
	ByType     []chartPoint `json:"by_type"`
	ByCategory []chartPoint `json:"by_category"`
	DailyTrend []chartPoint `json:"daily_trend"`
}

func point(label string, d decimal.Decimal) chartPoint {
	return chartPoint{Label: label, Amount: json.Number(d.StringFixed(2))}
}

// chartsFromSummary flattens a summary into the three chart series. Types
// follow display order and only kinds present in the ledger appear.
func chartsFromSummary(sum core.Summary) chartsResponse {
	resp := chartsResponse{
		Empty:      sum.IsEmpty(),
		ByType:     []chartPoint{},
		ByCategory: []chartPoint{},
		DailyTrend: []chartPoint{},
	}
	for _, k := range core.Kinds {
		if amount, ok := sum.ByType[k]; ok {
			resp.ByType = append(resp.ByType, point(k.String(), amount))
		}
	}
	for _, c := range sum.ByCategory {
		resp.ByCategory = append(resp.ByCategory, point(c.Name, c.Amount))
	}
	for _, d := range sum.DailyExpense {
		resp.DailyTrend = append(resp.DailyTrend, point(d.Day, d.Amount))
	}
	return resp
}

// handleCharts serves chart-ready series for the dashboard.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), dashboardTimeout)
	defer cancel()

	sum, err := s.ledger.Summary(ctx, sess)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Loading charts failed",
			log.FieldComponent, log.ComponentLedger,
			log.FieldOperation, log.OpRead,
			log.FieldError, err.Error())
		writeJSONError(w, http.StatusInternalServerError, "could not load charts")
		return
	}
	writeJSON(w, http.StatusOK, chartsFromSummary(sum))
}

func (s *Server) dashboardError(w http.ResponseWriter, r *http.Request, partial string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Loading dashboard failed",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpRead,
		"partial", partial,
		log.FieldError, err.Error())
	InternalServerError("Could not load your transactions. Please try again.").Write(w)
}
