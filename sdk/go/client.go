package aevalsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal aeval HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Timeout: 10 * time.Second}
}

type Dataset struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Size         string   `json:"size"`
	FileFormat   string   `json:"file_format,omitempty"`
	QualityScore *float64 `json:"metadata_quality_score,omitempty"`
	TotalRecords *int     `json:"total_records,omitempty"`
}

type Metric struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

type Scenario struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	RecommendedMetrics []string `json:"recommended_metrics"`
}

type Recommendation struct {
	Dataset  Dataset  `json:"dataset"`
	Metrics  []Metric `json:"metrics"`
	Agent    Agent    `json:"agent"`
	Scenario Scenario `json:"scenario"`
	Reason   string   `json:"reason"`
}

// ChatReply is the response of the stateless chat endpoint.
type ChatReply struct {
	Content        string          `json:"content"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Chat sends one free-text message to the stateless chat endpoint.
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	var resp ChatReply
	err := c.do(ctx, http.MethodPost, "v0/chat", map[string]any{"message": message}, &resp)
	return resp, err
}

// Classify returns the intent label for text.
func (c *Client) Classify(ctx context.Context, text string) (string, error) {
	var resp struct {
		Intent string `json:"intent"`
	}
	err := c.do(ctx, http.MethodPost, "v0/classify", map[string]any{"text": text}, &resp)
	return resp.Intent, err
}

// Recommend returns the bundle for an intent; nil when none applies.
func (c *Client) Recommend(ctx context.Context, intent string) (*Recommendation, error) {
	var resp struct {
		Recommendation *Recommendation `json:"recommendation"`
	}
	err := c.do(ctx, http.MethodPost, "v0/recommend", map[string]any{"intent": intent}, &resp)
	return resp.Recommendation, err
}

// Datasets lists catalog datasets, optionally filtered by q.
func (c *Client) Datasets(ctx context.Context, q string) ([]Dataset, error) {
	var resp struct {
		Items []Dataset `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("v0/datasets", "q", q), nil, &resp)
	return resp.Items, err
}

// Metrics lists catalog metrics, optionally filtered by q.
func (c *Client) Metrics(ctx context.Context, q string) ([]Metric, error) {
	var resp struct {
		Items []Metric `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("v0/metrics", "q", q), nil, &resp)
	return resp.Items, err
}

// Events returns recent local state events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var resp struct {
		Items []Event `json:"items"`
	}
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint, key, value string) string {
	if value == "" {
		return endpoint
	}
	return endpoint + "?" + url.Values{key: {value}}.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
