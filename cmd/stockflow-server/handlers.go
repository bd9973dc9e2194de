package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/stockflow/engine/internal/app"
	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

// buildMux exposes the engine operations over a small JSON API.
func buildMux(a *app.App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", healthHandler)

	mux.HandleFunc("POST /api/financials/refresh", func(w http.ResponseWriter, r *http.Request) {
		result, err := a.Financial.RefreshFinancials(r.Context(), r.URL.Query().Get("ticker"), boolParam(r, "force"))
		respond(w, result, err)
	})
	mux.HandleFunc("GET /api/financials/interpreted", func(w http.ResponseWriter, r *http.Request) {
		result, err := a.Financial.GetInterpretedEarnings(r.Context(), r.URL.Query().Get("ticker"), boolParam(r, "force"))
		respond(w, result, err)
	})

	mux.HandleFunc("POST /api/trading/refresh", func(w http.ResponseWriter, r *http.Request) {
		lastDate, err := a.Trading.RefreshTrading(r.Context(), r.URL.Query().Get("ticker"))
		respond(w, map[string]string{"last_date": lastDate}, err)
	})
	mux.HandleFunc("POST /api/trading/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req models.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		result, err := a.Trading.Analyze(r.Context(), req)
		respond(w, result, err)
	})
	mux.HandleFunc("GET /api/trading/history", func(w http.ResponseWriter, r *http.Request) {
		rows, err := a.Trading.History(r.Context(), r.URL.Query().Get("ticker"), intParam(r, "days"))
		respond(w, rows, err)
	})
	mux.HandleFunc("GET /api/trading/quote", func(w http.ResponseWriter, r *http.Request) {
		quote, err := a.Trading.Quote(r.Context(), r.URL.Query().Get("ticker"))
		respond(w, quote, err)
	})
	mux.HandleFunc("GET /api/trading/price", func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.Trading.PriceSnapshot(r.Context(), r.URL.Query().Get("ticker"))
		respond(w, snap, err)
	})
	mux.HandleFunc("GET /api/trading/candles", func(w http.ResponseWriter, r *http.Request) {
		candles, err := a.Trading.MarketCandles(r.Context(), r.URL.Query().Get("ticker"), intParam(r, "days"))
		respond(w, candles, err)
	})
	mux.HandleFunc("GET /api/trading/features", func(w http.ResponseWriter, r *http.Request) {
		features, err := a.Trading.Features(r.Context(), r.URL.Query().Get("ticker"))
		respond(w, features, err)
	})

	mux.HandleFunc("POST /api/news/crawl", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result, err := a.News.CrawlEntity(r.Context(), q.Get("entity"), q.Get("date"), boolParam(r, "force"), intParam(r, "max_articles"))
		respond(w, result, err)
	})
	mux.HandleFunc("POST /api/news/context", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result, err := a.News.BuildAIContext(r.Context(), q.Get("entity"), q.Get("date"), stepsParam(q.Get("steps")))
		respond(w, result, err)
	})
	mux.HandleFunc("GET /api/index", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := a.News.ListDailyIndex(r.Context(), q.Get("kind"), q.Get("date"))
		respond(w, entries, err)
	})

	mux.HandleFunc("GET /api/report-source", func(w http.ResponseWriter, r *http.Request) {
		result, err := a.ReportSource.Resolve(r.Context(), r.URL.Query().Get("ticker"), boolParam(r, "force"))
		respond(w, result, err)
	})

	mux.HandleFunc("POST /api/batch/run", func(w http.ResponseWriter, r *http.Request) {
		result, err := a.Batch.RunDaily(r.Context())
		respond(w, result, err)
	})
	mux.HandleFunc("POST /api/admin/reload_configs", func(w http.ResponseWriter, r *http.Request) {
		if err := a.ReloadConfigs(r.Context()); err != nil {
			respond(w, nil, err)
			return
		}
		respond(w, map[string]string{"status": "reloaded"}, nil)
	})

	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// respond maps the error taxonomy onto status codes: invalid input 400,
// unknown entity 404, upstream unavailable 502, anything else 500.
func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, common.ErrNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, common.ErrUpstreamUnavailable):
			respondError(w, http.StatusBadGateway, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// stepsParam parses "1,2" style step lists; empty means the caller default.
func stepsParam(raw string) []int {
	if raw == "" {
		return nil
	}
	var steps []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil && (n == 1 || n == 2) {
			steps = append(steps, n)
		}
	}
	return steps
}
