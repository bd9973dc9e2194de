package cards

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/models"
)

func TestGenerateCard(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.GenerateCard(context.Background(), "AAPL", "earnings_card", models.LLMRoute{
		Backend: "gemini", Model: "gemini-3-flash-preview",
	})
	require.NoError(t, err)

	assert.Equal(t, "/card/earnings_card", gotPath)
	assert.Contains(t, gotQuery, "ticker=AAPL")
	assert.Contains(t, gotQuery, "preferred_llm_backend=gemini")
	assert.Contains(t, gotQuery, "model_name=gemini-3-flash-preview")
}

func TestGenerateCardOmitsEmptyRoute(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.GenerateCard(context.Background(), "AAPL", "news_card", models.LLMRoute{}))
	assert.NotContains(t, gotQuery, "preferred_llm_backend")
	assert.NotContains(t, gotQuery, "model_name")
}

func TestGenerateCardErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.GenerateCard(context.Background(), "AAPL", "earnings_card", models.LLMRoute{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
