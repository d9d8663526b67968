package http

import (
	"errors"
	"fmt"
	"net/http"

	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/services"
	"khatabook/internal/session"
)

// entryRows converts submitted rows into domain rows. Rows without a
// description are passed through untouched so that the ledger service
// drops them; their other fields are not parsed.
func entryRows(raw []RawRow) ([]core.EntryRow, error) {
	rows := make([]core.EntryRow, 0, len(raw))
	for i, r := range raw {
		row := core.EntryRow{
			Category:    r.Get("category"),
			Description: r.Get("description"),
		}
		if row.Description == "" {
			rows = append(rows, row)
			continue
		}

		kind := r.Get("type")
		if kind == "" {
			kind = r.Get("kind")
		}
		k, err := core.ParseKind(kind)
		if err != nil {
			return nil, &services.RowError{Index: i, Err: err}
		}
		row.Kind = k

		amount, err := core.ParseAmount(r.Get("amount"))
		if err != nil {
			return nil, &services.RowError{Index: i, Err: err}
		}
		row.Amount = amount
		rows = append(rows, row)
	}
	return rows, nil
}

// rowErrorMessage renders a validation failure for the user.
func rowErrorMessage(err error) string {
	var rowErr *services.RowError
	if !errors.As(err, &rowErr) {
		return "Invalid transactions."
	}
	var what string
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		what = "amount must be a number of at least 0"
	case errors.Is(err, core.ErrInvalidKind):
		what = "type must be Income or Expense"
	case errors.Is(err, core.ErrEmptyCategory):
		what = "category is required"
	default:
		what = rowErr.Err.Error()
	}
	return fmt.Sprintf("Row %d: %s.", rowErr.Index+1, what)
}

// handleSaveTransactions stores one batch of entry rows under a single
// timestamp.
func (s *Server) handleSaveTransactions(w http.ResponseWriter, r *http.Request, sess session.Session) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	raw, err := parser.Rows()
	if err != nil {
		s.saveFailure(w, parser, BadRequestError("Invalid request format: "+err.Error()))
		return
	}

	rows, err := entryRows(raw)
	if err == nil {
		var n int
		n, err = s.ledger.SaveBatch(r.Context(), sess, rows)
		if err == nil {
			s.saveSuccess(w, parser, n)
			return
		}
	}

	var rowErr *services.RowError
	if errors.As(err, &rowErr) {
		s.saveFailure(w, parser, UnprocessableEntityError(rowErrorMessage(err)))
		return
	}
	ctx := r.Context()
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Saving transactions failed", err,
		log.ComponentLedger, log.OpAppend,
		log.LogFields{log.FieldUserID: sess.UserID, log.FieldCount: len(rows)})
	s.saveFailure(w, parser, InternalServerError("Could not save transactions. Please try again.").
		TriggerErrorNotification("Saving failed. Your rows are still in the form."))
}

func (s *Server) saveSuccess(w http.ResponseWriter, parser *RequestBodyParser, n int) {
	if parser.IsJSON() {
		writeJSON(w, http.StatusOK, map[string]int{"saved": n})
		return
	}
	if n == 0 {
		const msg = "Nothing to save. Add a description to each row."
		MessageResponse(http.StatusOK, "info", msg).
			TriggerNotification(NotificationInfo, msg, 3000).
			Write(w)
		return
	}
	msg := fmt.Sprintf("%d transaction(s) saved!", n)
	MessageResponse(http.StatusOK, "success", msg).
		TriggerLedgerSaved(n).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) saveFailure(w http.ResponseWriter, parser *RequestBodyParser, resp *HTMXResponseBuilder) {
	if parser.IsJSON() {
		writeJSONError(w, resp.statusCode, resp.message)
		return
	}
	resp.Write(w)
}
