package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"khatabook/internal/core"
	"khatabook/internal/export"
	"khatabook/internal/log"
	"khatabook/internal/session"
)

type exportFormat struct {
	name        string
	contentType string
	filename    string
	write       func(io.Writer, []core.Transaction) error
}

var (
	csvFormat  = exportFormat{"csv", export.CSVContentType, export.CSVFilename, export.WriteCSV}
	xlsxFormat = exportFormat{"xlsx", export.XLSXContentType, export.XLSXFilename, export.WriteXLSX}
)

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.export(w, r, sess, csvFormat)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request, sess session.Session) {
	s.export(w, r, sess, xlsxFormat)
}

// export renders the whole ledger into memory first so that a failure
// still yields a proper error status instead of a truncated download.
func (s *Server) export(w http.ResponseWriter, r *http.Request, sess session.Session, f exportFormat) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentExport)

	txns, err := s.ledger.List(ctx, sess)
	if err == nil {
		var buf bytes.Buffer
		if err = f.write(&buf, txns); err == nil {
			logger.InfoContext(ctx, "Ledger exported",
				log.FieldOperation, log.OpExport,
				"format", f.name,
				log.FieldCount, len(txns))
			w.Header().Set("Content-Type", f.contentType)
			w.Header().Set("Content-Disposition", `attachment; filename="`+f.filename+`"`)
			w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
			w.WriteHeader(http.StatusOK)
			_, _ = buf.WriteTo(w)
			return
		}
	}

	log.NewStructuredLogger(logger).LogError(ctx, "Ledger export failed", err,
		log.ComponentExport, log.OpExport,
		log.LogFields{log.FieldUserID: sess.UserID, "format": f.name})
	InternalServerError("Could not export transactions. Please try again.").Write(w)
}
