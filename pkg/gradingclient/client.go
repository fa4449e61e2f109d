// Package gradingclient talks to the remote grading service: batch grading,
// rubric document load/save, prompt previews and download links.
package gradingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/rubric"
)

const apiPrefix = "/api"

// Fallback messages used when the service does not return a readable detail.
const (
	MessageGradeFailed   = "Grading request failed, please try again later."
	MessageFetchFailed   = "Failed to load rubric configuration."
	MessageSaveFailed    = "Failed to save rubric configuration."
	MessagePreviewFailed = "Failed to build prompt preview."
	MessagePingFailed    = "Grading service is not reachable."
)

// ErrNoFiles is returned when Grade is called without any file.
var ErrNoFiles = errors.New("gradingclient: at least one file is required")

// Error is a failed call to the grading service, normalised to a user-facing message.
// StatusCode is zero when the service could not be reached. Err holds the transport
// failure or the schema mismatch of a fetched rubric.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message extracts the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Message
	}
	return err.Error()
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a typed HTTP client for the grading service.
type Client struct {
	baseURL   string
	http      *http.Client
	tracer    trace.Tracer
	logger    zerolog.Logger
	sanitizer *bluemonday.Policy
}

// New builds a client. The base URL must be absolute.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("gradingclient: invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		baseURL:   base,
		http:      httpClient,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/pkg/gradingclient"),
		logger:    cfg.Logger.With().Str("component", "grading_client").Logger(),
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// BaseURL returns the normalised service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks service liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, apiPrefix+"/ping", "", nil, nil, MessagePingFailed)
}

// FetchRubric loads the rubric document and checks it against the rubric schema.
// It returns nil without error when the service has no document yet.
func (c *Client) FetchRubric(ctx context.Context) (*models.RubricConfig, error) {
	var envelope struct {
		Config json.RawMessage `json:"config"`
	}
	if err := c.do(ctx, "fetch_rubric", http.MethodGet, apiPrefix+"/prompt-config", "", nil, &envelope, MessageFetchFailed); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(envelope.Config)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	cfg, err := rubric.DecodeDocument(trimmed)
	if err != nil {
		c.logger.Warn().Err(err).Msg("grading service returned a malformed rubric")
		return nil, &Error{StatusCode: http.StatusOK, Message: MessageFetchFailed, Err: err}
	}
	return cfg, nil
}

// SaveRubric replaces the rubric document on the service.
func (c *Client) SaveRubric(ctx context.Context, cfg *models.RubricConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode rubric: %w", err)
	}
	return c.do(ctx, "save_rubric", http.MethodPost, apiPrefix+"/prompt-config", "application/json", bytes.NewReader(body), nil, MessageSaveFailed)
}

// PreviewRequest asks the service to render the prompts for one category.
type PreviewRequest struct {
	PromptConfig   *models.RubricConfig `json:"prompt_config"`
	CategoryKey    string               `json:"category_key"`
	ScoreTargetMax float64              `json:"score_target_max"`
}

// PreviewResponse is the rendered prompt pair.
type PreviewResponse struct {
	SystemPrompt   string  `json:"system_prompt"`
	UserPrompt     string  `json:"user_prompt"`
	ScoreRubricMax float64 `json:"score_rubric_max"`
	ScoreTargetMax float64 `json:"score_target_max"`
}

// PreviewPrompt renders the prompts the service would send for a category.
func (c *Client) PreviewPrompt(ctx context.Context, req PreviewRequest) (*PreviewResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode preview request: %w", err)
	}
	var resp PreviewResponse
	if err := c.do(ctx, "preview_prompt", http.MethodPost, apiPrefix+"/prompt-preview", "application/json", bytes.NewReader(body), &resp, MessagePreviewFailed); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveDownloadURL turns a server-relative download path into an absolute URL.
// Absolute URLs are returned unchanged and empty paths stay empty.
func (c *Client) ResolveDownloadURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if parsed, err := url.Parse(path); err == nil && parsed.IsAbs() {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, operation, method, path, contentType string, body io.Reader, out interface{}, fallback string) error {
	ctx, span := c.tracer.Start(ctx, "gradingclient."+operation, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	start := time.Now()
	err := c.roundTrip(ctx, method, path, contentType, body, out, fallback)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn().Err(err).Str("operation", operation).Msg("grading service call failed")
	}
	observability.GatewayLatency().WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}, fallback string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: c.detail(payload, fallback)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fallback}
	}
	return nil
}

// plain strips markup from a service message and decodes the entities the policy
// escapes, since messages are shown as text rather than rendered.
func (c *Client) plain(text string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(text)))
}

// detail reads the service's "detail" field, which is either a message string or a
// list of validation errors carrying "msg".
func (c *Client) detail(payload []byte, fallback string) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.Detail) == 0 {
		return fallback
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		if clean := c.plain(text); clean != "" {
			return clean
		}
		return fallback
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, entry := range list {
			if clean := c.plain(entry.Msg); clean != "" {
				parts = append(parts, clean)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return fallback
}
