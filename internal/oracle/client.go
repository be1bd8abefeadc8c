// Package oracle talks to the hosted generative model that judges
// eligibility and reads lender guideline documents.
package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lender-matching/internal/common/config"
	commonhttp "lender-matching/internal/common/http"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/common/observability"
)

const (
	OperationEvaluation = "evaluation"
	OperationExtraction = "extraction"

	// maxErrorBody bounds the provider error text kept on StatusError, in runes.
	maxErrorBody = 1024
)

var (
	ErrTimeout        = errors.New("ORACLE_TIMEOUT")
	ErrRequestFailed  = errors.New("ORACLE_REQUEST_FAILED")
	ErrEmptyResponse  = errors.New("ORACLE_EMPTY_RESPONSE")
	ErrInvalidRequest = errors.New("ORACLE_INVALID_REQUEST")
)

// StatusError is a non-success HTTP status from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned status %d: %s", e.StatusCode, e.Body)
}

// GenerationConfig mirrors the provider's generationConfig block.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// Config is everything the client needs; nothing is read from the environment.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	EvaluationTimeout time.Duration
	ExtractionTimeout time.Duration
	Evaluation        GenerationConfig
	Extraction        GenerationConfig
}

// ConfigFrom converts the loaded application configuration.
func ConfigFrom(c config.OracleConfig) Config {
	return Config{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		Model:             c.Model,
		EvaluationTimeout: config.GetDuration(c.EvaluationTimeout),
		ExtractionTimeout: config.GetDuration(c.ExtractionTimeout),
		Evaluation:        generationFrom(c.Evaluation),
		Extraction:        generationFrom(c.Extraction),
	}
}

func generationFrom(g config.GenerationConfig) GenerationConfig {
	return GenerationConfig{
		Temperature:      g.Temperature,
		TopP:             g.TopP,
		TopK:             g.TopK,
		MaxOutputTokens:  g.MaxOutputTokens,
		ResponseMimeType: g.ResponseMimeType,
	}
}

// Client calls the generateContent endpoint. It makes exactly one attempt per
// call and gives no guarantee about the shape of the returned text.
type Client struct {
	config Config
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		// deadlines come from the per-call context
		http:   commonhttp.NewClient(0),
		logger: log.WithFields(map[string]interface{}{"component": "oracle", "model": cfg.Model}),
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// GenerateEvaluation sends an eligibility prompt and returns the raw text.
func (c *Client) GenerateEvaluation(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrInvalidRequest)
	}
	req := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &c.config.Evaluation,
	}
	return c.generate(ctx, OperationEvaluation, c.config.EvaluationTimeout, req)
}

// GenerateExtraction sends a document inline with an extraction prompt.
func (c *Client) GenerateExtraction(ctx context.Context, document []byte, mimeType, prompt string) (string, error) {
	if len(document) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrInvalidRequest)
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	req := generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(document)}},
			{Text: prompt},
		}}},
		GenerationConfig: &c.config.Extraction,
	}
	return c.generate(ctx, OperationExtraction, c.config.ExtractionTimeout, req)
}

func (c *Client) generate(ctx context.Context, operation string, timeout time.Duration, body generateRequest) (string, error) {
	ctx, span := observability.Tracer("oracle").Start(ctx, "oracle.generate")
	span.SetAttributes(attribute.String("oracle.operation", operation), attribute.String("oracle.model", c.config.Model))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.send(ctx, body)
	status := statusLabel(err)
	metrics.OracleRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		c.logger.Warn("oracle call failed", map[string]interface{}{
			"operation":  operation,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
			"error":      err.Error(),
		})
		return "", err
	}

	c.logger.Debug("oracle call completed", map[string]interface{}{
		"operation":     operation,
		"durationMs":    time.Since(start).Milliseconds(),
		"responseBytes": len(text),
	})
	return text, nil
}

func (c *Client) send(ctx context.Context, body generateRequest) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.config.BaseURL, "/"), c.config.Model)
	resp, err := c.http.PostJSON(ctx, url, body, map[string]string{"x-goog-api-key": c.config.APIKey})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if !resp.IsSuccess() {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncateRunes(string(resp.Body), maxErrorBody)}
	}

	var gr generateResponse
	if err := json.Unmarshal(resp.Body, &gr); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrEmptyResponse, err)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", ErrEmptyResponse)
	}
	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: unexpected response format", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func statusLabel(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &se):
		return fmt.Sprintf("http_%d", se.StatusCode)
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
