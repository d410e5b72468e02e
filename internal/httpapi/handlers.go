package httpapi

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/metrics"
	"caixa/backend/internal/report"
	"caixa/backend/internal/service"
)

// moneyPattern allows plain digits with an optional sign and up to two
// decimals. Exponent forms are refused before they reach decimal parsing.
var moneyPattern = regexp.MustCompile(`^[+-]?[0-9]{1,13}(\.[0-9]{1,2})?$`)

var errMalformedAmount = errors.New("malformed amount")

type indexResponse struct {
	domain.ClosingReport
	Erro string `json:"erro,omitempty"`
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	closing, err := a.service.Closing(r.Context(), r.URL.Query().Get("data"))
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidDate) && r.URL.Query().Get("erro") != "" {
			// Already bounced once; avoid a redirect loop.
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{
		ClosingReport: closing,
		Erro:          r.URL.Query().Get("erro"),
	})
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	req, err := parseSaleForm(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sale, duplicate, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !duplicate {
		metrics.SalesRecorded.WithLabelValues(string(sale.PaymentMethod)).Inc()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) handleExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, r, service.Invalid("form"))
		return
	}
	amount, err := parseMoney(r.PostForm.Get("valor"), false)
	if err != nil {
		a.fail(w, r, service.Invalid("Amount"))
		return
	}
	_, duplicate, err := a.service.RecordExpense(r.Context(), domain.ExpenseRequest{
		IdempotencyKey: r.PostForm.Get("idempotency_key"),
		Description:    r.PostForm.Get("descricao"),
		Amount:         amount,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !duplicate {
		metrics.ExpensesRecorded.Inc()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	artifact, err := a.service.Export(r.Context(), r.URL.Query().Get("data"), format)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	metrics.ReportsEmitted.WithLabelValues(string(format), "request").Inc()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Body)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleEditSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	req, err := parseSaleForm(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if _, err := a.service.UpdateSale(r.Context(), id, req); err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if err := a.service.DeleteSale(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if err := a.service.DeleteExpense(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func parseSaleForm(r *http.Request) (domain.SaleRequest, error) {
	if err := r.ParseForm(); err != nil {
		return domain.SaleRequest{}, service.Invalid("form")
	}
	amount, err := parseMoney(r.PostForm.Get("valor"), false)
	if err != nil {
		return domain.SaleRequest{}, service.Invalid("Amount")
	}
	tendered, err := parseMoney(r.PostForm.Get("nota_dada"), true)
	if err != nil {
		return domain.SaleRequest{}, service.Invalid("Tendered")
	}
	return domain.SaleRequest{
		IdempotencyKey: r.PostForm.Get("idempotency_key"),
		Product:        r.PostForm.Get("produto"),
		Amount:         amount,
		PaymentMethod:  domain.PaymentMethod(r.PostForm.Get("pagamento")),
		Tendered:       tendered,
	}, nil
}

// parseMoney accepts "12.50" and the local "12,50", with at most two
// decimal places. An empty value is only allowed for optional fields and
// reads as zero.
func parseMoney(raw string, optional bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if optional {
			return decimal.Zero, nil
		}
		return decimal.Decimal{}, errors.New("amount required")
	}
	if strings.Contains(raw, ",") && !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	if !moneyPattern.MatchString(raw) {
		return decimal.Decimal{}, errMalformedAmount
	}
	return decimal.NewFromString(raw)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
