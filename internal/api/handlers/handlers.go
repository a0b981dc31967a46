package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/jar-dashboard/internal/api/middleware"
	"github.com/dvloznov/jar-dashboard/internal/backup"
	"github.com/dvloznov/jar-dashboard/internal/dashboard"
	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/logger"
	"github.com/dvloznov/jar-dashboard/internal/rates"
	"github.com/dvloznov/jar-dashboard/internal/reconcile"
	"github.com/dvloznov/jar-dashboard/internal/remote"
)

// maxImportBytes bounds the body of POST /api/import.
const maxImportBytes = 10 << 20

// DashboardHandler handles the state and action endpoints.
type DashboardHandler struct {
	svc   *dashboard.Service
	rates rates.Fetcher
	log   zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler. fetcher may be nil, in
// which case POST /api/rate/refresh is unavailable.
func NewDashboardHandler(svc *dashboard.Service, fetcher rates.Fetcher, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		svc:   svc,
		rates: fetcher,
		log:   log,
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	reconcile.Status
	ConfigError string `json:"configError,omitempty"`
}

func (h *DashboardHandler) status() StatusResponse {
	resp := StatusResponse{Status: h.svc.Status()}
	if err := h.svc.ConfigError(); err != nil {
		resp.ConfigError = err.Error()
	}
	return resp
}

// GetState handles GET /api/state
func (h *DashboardHandler) GetState(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("strict") == "true" {
		if err := h.svc.ConfigError(); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"error": err.Error(),
				"state": h.svc.State(),
			})
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, h.svc.State())
}

// GetStatus handles GET /api/status
func (h *DashboardHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.status())
}

// GetSummary handles GET /api/summary
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.svc.Summary())
}

// GetWithdrawalQuote handles GET /api/withdrawals/quote
func (h *DashboardHandler) GetWithdrawalQuote(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.svc.WithdrawalQuote())
}

// SetRate handles PUT /api/rate
func (h *DashboardHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.SetDollarRate(req.Rate); err != nil {
		h.fail(w, r, err, "Failed to set rate")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]float64{"dollarRate": h.svc.State().DollarRate})
}

// RefreshRate handles POST /api/rate/refresh
func (h *DashboardHandler) RefreshRate(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Rate source not configured")
		return
	}
	rate, err := h.rates.Fetch(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("Failed to fetch rate")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch rate")
		return
	}
	if err := h.svc.RefreshRate(r.Context(), rate); err != nil {
		h.fail(w, r, err, "Failed to apply rate")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fetched":    rate,
		"dollarRate": h.svc.State().DollarRate,
	})
}

// AddTransaction handles POST /api/transactions
func (h *DashboardHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type      domain.TransactionType `json:"type"`
		Partner   string                 `json:"partner"`
		AmountBRL string                 `json:"amountBrl"`
		Date      string                 `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Type != domain.TransactionDeposit && req.Type != domain.TransactionWithdrawal {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid transaction type %q", req.Type))
		return
	}
	partner, err := domain.ParsePartner(req.Partner)
	if err != nil {
		h.fail(w, r, err, "Invalid partner")
		return
	}
	in := domain.NewTransaction{
		Type:      req.Type,
		Partner:   partner,
		AmountBRL: domain.ParseCurrency(req.AmountBRL),
	}
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: %q", domain.ErrInvalidDate, req.Date), "Invalid date")
			return
		}
		in.Date = d
	}

	tx, err := h.svc.AddTransaction(in)
	if err != nil {
		h.fail(w, r, err, "Failed to add transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *DashboardHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.DeleteTransaction(id); err != nil {
		h.fail(w, r, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterWithdrawals handles POST /api/withdrawals
func (h *DashboardHandler) RegisterWithdrawals(w http.ResponseWriter, r *http.Request) {
	booked, err := h.svc.RegisterWithdrawals()
	if err != nil {
		h.fail(w, r, err, "Failed to register withdrawals")
		return
	}
	if booked == nil {
		booked = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": booked,
		"count":        len(booked),
	})
}

// AddRoadmapDeposit handles POST /api/roadmap/{partner}
func (h *DashboardHandler) AddRoadmapDeposit(w http.ResponseWriter, r *http.Request) {
	partner, err := domain.ParsePartner(mux.Vars(r)["partner"])
	if err != nil {
		h.fail(w, r, err, "Invalid partner")
		return
	}
	tx, err := h.svc.AddRoadmapDeposit(partner)
	if err != nil {
		h.fail(w, r, err, "Failed to add deposit")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// UpdateAccount handles PATCH /api/accounts/{account}
func (h *DashboardHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	var patch domain.AccountPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.UpdateAccount(id, patch); err != nil {
		h.fail(w, r, err, "Failed to update account")
		return
	}
	st := h.svc.State()
	p, _ := st.Account(id)
	middleware.WriteJSON(w, http.StatusOK, p)
}

// AddToStartDeposit handles POST /api/accounts/{account}/deposit
func (h *DashboardHandler) AddToStartDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	amount, err := h.svc.AddToStartDeposit(id)
	if err != nil {
		h.fail(w, r, err, "Failed to add deposit")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"added": amount})
}

// RegisterDay handles POST /api/accounts/{account}/days
func (h *DashboardHandler) RegisterDay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	rec, err := h.svc.RegisterDay(id, confirm)
	if err != nil {
		h.fail(w, r, err, "Failed to register day")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, rec)
}

// DeleteDailyRecord handles DELETE /api/accounts/{account}/days/{date}
func (h *DashboardHandler) DeleteDailyRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteDailyRecord(id, mux.Vars(r)["date"]); err != nil {
		h.fail(w, r, err, "Failed to delete daily record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetDraft handles PUT /api/drafts/{bucket}/{field}
func (h *DashboardHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.svc.SetDraft(vars["bucket"], vars["field"], req.Value); err != nil {
		h.fail(w, r, err, "Failed to set draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save handles POST /api/save
func (h *DashboardHandler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ManualSave(r.Context()); err != nil {
		h.fail(w, r, err, "Failed to save")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.status())
}

// Reset handles POST /api/reset
func (h *DashboardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		h.fail(w, r, err, "State reset locally but failed to sync")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.svc.State())
}

// Export handles GET /api/export
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.svc.ExportName()))
	if err := h.svc.Export(w); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to write export")
	}
}

// Import handles POST /api/import
func (h *DashboardHandler) Import(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := h.svc.Import(r.Context(), body); err != nil {
		h.fail(w, r, err, "Import failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.svc.State())
}

func (h *DashboardHandler) account(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	id, err := domain.ParseAccount(mux.Vars(r)["account"])
	if err != nil {
		h.fail(w, r, err, "Invalid account")
		return "", false
	}
	return id, true
}

// fail maps a service error to a status code and writes it.
func (h *DashboardHandler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := StatusFor(err)
	log := logger.FromContext(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(message)
	} else {
		log.Debug().Err(err).Msg(message)
	}
	middleware.WriteError(w, code, fmt.Sprintf("%s: %v", message, err))
}

// StatusFor maps the error vocabulary of the dashboard to HTTP status codes.
func StatusFor(err error) int {
	var writeErr *remote.WriteError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrDailyRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDailyRecordExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownAccount),
		errors.Is(err, domain.ErrUnknownPartner),
		errors.Is(err, domain.ErrUnknownDraft),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRate),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, backup.ErrMalformedImport):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, remote.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &writeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
