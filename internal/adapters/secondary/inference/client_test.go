package inference_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soporte-labs/ticket-dashboard/internal/adapters/secondary/inference"
	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
	"github.com/soporte-labs/ticket-dashboard/internal/infrastructure/logging"
)

func chatServer(t *testing.T, modelOutput string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": modelOutput}},
			},
		})
	}))
}

func newClient(t *testing.T, baseURL string) *inference.Client {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: "error", Format: "text"})
	return inference.NewClient(baseURL, "test-token", "test-model", 5*time.Second, logger)
}

func TestClient_Analyze(t *testing.T) {
	t.Run("parses a clean JSON response", func(t *testing.T) {
		srv := chatServer(t, `{"category":"Facturación","sentiment":"Negativo","confidence":0.91}`)
		defer srv.Close()

		analysis, err := newClient(t, srv.URL).Analyze(context.Background(), "No me han cobrado bien")

		require.NoError(t, err)
		assert.Equal(t, domain.CategoryFacturacion, analysis.Category)
		assert.Equal(t, domain.SentimentNegativo, analysis.Sentiment)
		assert.InDelta(t, 0.91, analysis.Confidence, 1e-9)
	})

	t.Run("extracts JSON wrapped in prose", func(t *testing.T) {
		srv := chatServer(t, "Claro, aquí está:\n```json\n{\"category\":\"Técnico\",\"sentiment\":\"Neutral\",\"confidence\":0.75}\n```")
		defer srv.Close()

		analysis, err := newClient(t, srv.URL).Analyze(context.Background(), "La app se cierra sola")

		require.NoError(t, err)
		assert.Equal(t, domain.CategoryTecnico, analysis.Category)
		assert.Equal(t, domain.SentimentNeutral, analysis.Sentiment)
	})

	t.Run("rejects values outside the enumerations", func(t *testing.T) {
		srv := chatServer(t, `{"category":"Soporte","sentiment":"Neutral","confidence":0.8}`)
		defer srv.Close()

		_, err := newClient(t, srv.URL).Analyze(context.Background(), "Algo raro pasa")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrAnalysisFailed)
	})

	t.Run("rejects out-of-range confidence", func(t *testing.T) {
		srv := chatServer(t, `{"category":"Técnico","sentiment":"Neutral","confidence":1.7}`)
		defer srv.Close()

		_, err := newClient(t, srv.URL).Analyze(context.Background(), "Algo raro pasa")
		assert.ErrorIs(t, err, apperrors.ErrAnalysisFailed)
	})

	t.Run("fails when the output has no JSON object", func(t *testing.T) {
		srv := chatServer(t, "Lo siento, no puedo clasificar este ticket.")
		defer srv.Close()

		_, err := newClient(t, srv.URL).Analyze(context.Background(), "Algo raro pasa")
		assert.Error(t, err)
	})

	t.Run("fails on a non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).Analyze(context.Background(), "Algo raro pasa")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("fails when the response has no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL).Analyze(context.Background(), "Algo raro pasa")
		assert.Error(t, err)
	})

	t.Run("fails when the endpoint is unreachable", func(t *testing.T) {
		_, err := newClient(t, "http://127.0.0.1:1").Analyze(context.Background(), "Algo raro pasa")
		assert.Error(t, err)
	})
}
