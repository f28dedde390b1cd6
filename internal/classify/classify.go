package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	tekuri "github.com/santhosh-tekuri/jsonschema/v5"
)

// Classifier classifies a single frame. Implementations never return an
// error; failures surface as Idle results.
type Classifier interface {
	Classify(ctx context.Context, image []byte) Result
}

// Config controls classifier behavior.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint (for proxies and tests).
	BaseURL string

	// Model is the vision-language model to use.
	Model string

	// MaxOutputTokens bounds the reply size.
	MaxOutputTokens int64

	// MaxAttempts is the total call budget, including the first attempt.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; it doubles per retry.
	BackoffBase time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:           "gpt-5-mini",
		MaxOutputTokens: 300,
		MaxAttempts:     3,
		BackoffBase:     1000 * time.Millisecond,
	}
}

// Client calls the external vision classifier with retry and fallbacks.
type Client struct {
	api         openai.Client
	model       string
	maxTokens   int64
	maxAttempts int
	backoffBase time.Duration

	schema    map[string]interface{}
	validator *tekuri.Schema

	// invoke and sleep are injection points for tests.
	invoke func(ctx context.Context, params responses.ResponseNewParams) (string, error)
	sleep  func(ctx context.Context, d time.Duration)

	// onBusy, if set, receives a provisional result while the client
	// waits out a provider-overload backoff.
	onBusy func(Result)
}

// New creates a classifier client.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("classify: model is empty")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultConfig().MaxOutputTokens
	}

	schema := resultSchema()
	validator, err := compileSchema(schema)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxOutputTokens,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		schema:      schema,
		validator:   validator,
		sleep:       sleepContext,
	}
	c.invoke = c.invokeAPI
	return c, nil
}

// SetBusyNotifier registers a callback invoked with a provisional Idle
// result each time the client backs off on provider overload.
func (c *Client) SetBusyNotifier(fn func(Result)) {
	c.onBusy = fn
}

// Classify sends one frame to the model and returns its classification.
// Every failure path resolves to a synthetic Idle result; Classify never
// panics and never returns an error.
func (c *Client) Classify(ctx context.Context, image []byte) Result {
	payload := normalizeImage(image)
	if payload == "" {
		return idleResult(ReasonFailed)
	}

	params := c.newParams(payload)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		out, err := c.invoke(ctx, params)
		if err != nil {
			if !isOverloaded(err) {
				return idleResult(ReasonFailed)
			}
			if attempt == c.maxAttempts-1 {
				return idleResult(ReasonUnavailable)
			}
			if c.onBusy != nil {
				c.onBusy(idleResult(ReasonBusy))
			}
			c.sleep(ctx, c.backoffBase<<attempt)
			if ctx.Err() != nil {
				return idleResult(ReasonUnavailable)
			}
			continue
		}

		res, err := c.decode(out)
		if err != nil {
			// Malformed replies are permanent failures; retrying the
			// same frame rarely helps and burns the rate limit.
			return idleResult(ReasonFailed)
		}
		return res
	}
	return idleResult(ReasonUnavailable)
}

// sleepContext waits for d or until ctx is cancelled, whichever is first.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Client) invokeAPI(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	resp, err := c.api.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

func (c *Client) newParams(dataURI string) responses.ResponseNewParams {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "FrameClassification",
			Schema:      c.schema,
			Strict:      openai.Bool(true),
			Description: openai.String("Focus classification JSON"),
			Type:        "json_schema",
		},
	}

	return responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(c.maxTokens),
		Instructions:    openai.String(classifyInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleUser,
						Content: responses.EasyInputMessageContentUnionParam{
							OfInputItemContentList: responses.ResponseInputMessageContentListParam{
								responses.ResponseInputContentUnionParam{
									OfInputImage: &responses.ResponseInputImageParam{
										Detail:   responses.ResponseInputImageDetailLow,
										ImageURL: openai.String(dataURI),
									},
								},
							},
						},
					},
				},
			},
		},
		Text: responses.ResponseTextConfigParam{Format: format},
	}
}

// decode parses a model reply into a Result, stripping markdown fences
// and validating against the response schema.
func (c *Client) decode(outputText string) (Result, error) {
	s := stripFence(outputText)
	if s == "" {
		return Result{}, errors.New("empty model output")
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return Result{}, fmt.Errorf("unmarshal model output: %w", err)
	}
	if err := c.validator.Validate(decoded); err != nil {
		return Result{}, fmt.Errorf("schema violation: %w", err)
	}

	var w wireResult
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Result{}, fmt.Errorf("unmarshal result: %w", err)
	}

	status := ParseStatus(w.Status)
	if status == StatusIdle {
		return Result{}, fmt.Errorf("unknown status %q", w.Status)
	}

	return Result{
		Status:     status,
		Reason:     strings.TrimSpace(w.Reason),
		Confidence: clamp01(w.Confidence),
	}, nil
}

// isOverloaded reports whether an error is a transient provider-overload
// signal worth retrying: HTTP 503 or overload markers in the error text.
func isOverloaded(err error) bool {
	if err == nil {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "overloaded") || strings.Contains(s, "UNAVAILABLE")
}

// stripFence removes a leading/trailing markdown code fence, either
// language-tagged (```json) or bare (```).
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && isFenceTag(s[:i]) {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isFenceTag reports whether the text after an opening fence is a language
// tag line rather than the start of the payload.
func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// normalizeImage converts the frame payload into a JPEG data URI. Accepted
// inputs: an existing data URI (its prefix is stripped and rebuilt), a bare
// base64 string, or raw image bytes.
func normalizeImage(image []byte) string {
	if len(image) == 0 {
		return ""
	}

	s := strings.TrimSpace(string(image))
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return ""
		}
		s = s[comma+1:]
		if s == "" {
			return ""
		}
		return "data:image/jpeg;base64," + s
	}

	if _, err := base64.StdEncoding.DecodeString(s); err == nil {
		return "data:image/jpeg;base64," + s
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
