// Package httpfacade exposes a thin, optional debug HTTP surface over the
// sync core, modeled on the teacher's internal/httpapi/router.go (chi
// middleware layering, writeJSON/writeError helpers). The real UI is out
// of scope for this core; this surface exists only so the core has some
// externally drivable entrypoint besides the CLI.
package httpfacade

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/fieldsync/core/internal/appapi"
	"github.com/fieldsync/core/internal/model"
)

// Server holds the dependencies the debug handlers need.
type Server struct {
	App *appapi.App
	Log zerolog.Logger
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// Routes builds the chi router: POST /expenses, GET /expenses,
// GET /queue/stats.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/expenses", s.createExpense)
	r.Get("/expenses", s.listExpenses)
	r.Get("/queue/stats", s.queueStats)

	return r
}

type createExpenseReq struct {
	AmountMinorUnits int64          `json:"amountMinorUnits"`
	Category         model.Category `json:"category"`
	JobOrderID       *string        `json:"jobOrderId,omitempty"`
	IsOverhead       bool           `json:"isOverhead"`
	ExpenseDate      string         `json:"expenseDate"`
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	form := appapi.ExpenseForm{
		AmountMinorUnits: req.AmountMinorUnits,
		Category:         req.Category,
		JobOrderID:       req.JobOrderID,
		IsOverhead:       req.IsOverhead,
		ExpenseDate:      req.ExpenseDate,
	}

	probe := &model.Expense{JobOrderID: form.JobOrderID, IsOverhead: form.IsOverhead}
	if !probe.HasValidJobLink() {
		writeError(w, http.StatusBadRequest, "exactly one of jobOrderId or isOverhead must be set")
		return
	}

	expense, err := s.App.SaveExpenseLocally(r.Context(), form, nil)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.App.GetLocalExpenses(appapi.ExpenseQuery{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.App.Queue.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
