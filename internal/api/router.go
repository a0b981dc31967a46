// Package api exposes the dashboard over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/api/handlers"
	"github.com/dvloznov/jar-dashboard/internal/api/middleware"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Dashboard *handlers.DashboardHandler
	Jobs      *handlers.JobsHandler
	Stream    *handlers.Stream
}

// NewRouter builds the routes and applies the middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	a := r.PathPrefix("/api").Subrouter()

	if d := h.Dashboard; d != nil {
		a.Methods(http.MethodGet).Path("/state").HandlerFunc(d.GetState)
		a.Methods(http.MethodGet).Path("/status").HandlerFunc(d.GetStatus)
		a.Methods(http.MethodGet).Path("/summary").HandlerFunc(d.GetSummary)

		a.Methods(http.MethodPut).Path("/rate").HandlerFunc(d.SetRate)
		a.Methods(http.MethodPost).Path("/rate/refresh").HandlerFunc(d.RefreshRate)

		a.Methods(http.MethodPost).Path("/transactions").HandlerFunc(d.AddTransaction)
		a.Methods(http.MethodDelete).Path("/transactions/{id}").HandlerFunc(d.DeleteTransaction)
		a.Methods(http.MethodGet).Path("/withdrawals/quote").HandlerFunc(d.GetWithdrawalQuote)
		a.Methods(http.MethodPost).Path("/withdrawals").HandlerFunc(d.RegisterWithdrawals)
		a.Methods(http.MethodPost).Path("/roadmap/{partner}").HandlerFunc(d.AddRoadmapDeposit)

		a.Methods(http.MethodPatch).Path("/accounts/{account}").HandlerFunc(d.UpdateAccount)
		a.Methods(http.MethodPost).Path("/accounts/{account}/deposit").HandlerFunc(d.AddToStartDeposit)
		a.Methods(http.MethodPost).Path("/accounts/{account}/days").HandlerFunc(d.RegisterDay)
		a.Methods(http.MethodDelete).Path("/accounts/{account}/days/{date}").HandlerFunc(d.DeleteDailyRecord)

		a.Methods(http.MethodPut).Path("/drafts/{bucket}/{field}").HandlerFunc(d.SetDraft)

		a.Methods(http.MethodPost).Path("/save").HandlerFunc(d.Save)
		a.Methods(http.MethodPost).Path("/reset").HandlerFunc(d.Reset)
		a.Methods(http.MethodGet).Path("/export").HandlerFunc(d.Export)
		a.Methods(http.MethodPost).Path("/import").HandlerFunc(d.Import)
	}

	if j := h.Jobs; j != nil {
		a.Methods(http.MethodPost).Path("/jobs").HandlerFunc(j.CreateJob)
		a.Methods(http.MethodGet).Path("/jobs").HandlerFunc(j.ListJobs)
		a.Methods(http.MethodGet).Path("/jobs/{id}").HandlerFunc(j.GetJob)
	}

	if h.Stream != nil {
		a.Methods(http.MethodGet).Path("/stream").Handler(h.Stream)
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(r),
			),
		),
	)
}
