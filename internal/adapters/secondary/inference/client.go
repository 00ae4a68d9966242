package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
	apperrors "github.com/soporte-labs/ticket-dashboard/internal/core/errors"
	"github.com/soporte-labs/ticket-dashboard/internal/core/ports"
)

const systemPrompt = `Eres un clasificador de tickets de soporte. Analiza la descripción del ticket y responde ÚNICAMENTE con un objeto JSON con esta forma exacta:
{"category": "Técnico" | "Facturación" | "Comercial", "sentiment": "Positivo" | "Neutral" | "Negativo", "confidence": <número entre 0 y 1>}
No incluyas ningún otro texto.`

// Client calls an OpenAI-compatible chat-completions endpoint to classify
// ticket descriptions. It implements the ports.Analyzer interface.
type Client struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a new inference client.
func NewClient(baseURL, token, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "inference_client"),
	}
}

// --- wire types for the chat-completions API ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type analysisResult struct {
	Category   string  `json:"category"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Analyze classifies a ticket description into category and sentiment.
func (c *Client) Analyze(ctx context.Context, description string) (domain.Analysis, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: description},
		},
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encoding inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("calling inference API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("inference API returned non-200 status",
			"status", resp.StatusCode,
			"body", string(raw),
		)
		return domain.Analysis{}, fmt.Errorf("inference API status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return domain.Analysis{}, fmt.Errorf("decoding inference response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("inference response has no choices")
	}

	return parseAnalysis(chat.Choices[0].Message.Content)
}

// parseAnalysis extracts the strict JSON object the model was prompted for.
// Models occasionally wrap the object in prose or code fences, so the parse
// starts at the first brace and ends at the last.
func parseAnalysis(content string) (domain.Analysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return domain.Analysis{}, fmt.Errorf("no JSON object in model output: %q", truncate(content, 200))
	}

	var result analysisResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return domain.Analysis{}, fmt.Errorf("parsing model output: %w", err)
	}

	analysis := domain.Analysis{
		Category:   domain.TicketCategory(result.Category),
		Sentiment:  domain.TicketSentiment(result.Sentiment),
		Confidence: result.Confidence,
	}
	if err := analysis.Validate(); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %w", apperrors.ErrAnalysisFailed, err)
	}

	return analysis, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
