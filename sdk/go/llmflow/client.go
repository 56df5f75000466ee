package llmflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Synchronous dispatch waits on the model, so it is longer than a plain REST call.
const DefaultHTTPTimeout = 90 * time.Second

// Filter selects which todos ListTodos returns.
type Filter string

// Supported filters.
const (
	FilterActive    Filter = "active"
	FilterAll       Filter = "all"
	FilterCompleted Filter = "completed"
)

// Client wraps the HTTP interactions with the llmflow REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Todo is a single todo item as returned by the API.
type Todo struct {
	ID          int        `json:"id"`
	Task        string     `json:"task"`
	CreatedAt   time.Time  `json:"created_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Receipt acknowledges a message accepted for asynchronous processing.
type Receipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("llmflow api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llmflow api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the llmflow API. When httpClient is nil,
// a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SendMessage routes a message synchronously and returns the reply.
func (c *Client) SendMessage(ctx context.Context, message string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/api/v1/messages", nil, map[string]string{"message": message}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// SubmitMessage queues a message for the server's inbox processor.
func (c *Client) SubmitMessage(ctx context.Context, message string) (Receipt, error) {
	var receipt Receipt
	query := url.Values{"async": []string{"true"}}
	if err := c.post(ctx, "/api/v1/messages", query, map[string]string{"message": message}, &receipt); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// ListTodos fetches todos matching the filter. An empty filter means active.
func (c *Client) ListTodos(ctx context.Context, filter Filter) ([]Todo, error) {
	var query url.Values
	if filter != "" {
		query = url.Values{"filter": []string{string(filter)}}
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/todos", query, nil)
	if err != nil {
		return nil, err
	}
	var todos []Todo
	if err := c.do(req, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, query, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
