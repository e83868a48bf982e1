// Package jotform provides a client for the Jotform form submissions API.
package jotform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/mentor-sync/internal/resilience"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.jotform.com"

// createdAtLayout is the timestamp format of submission created_at.
const createdAtLayout = "2006-01-02 15:04:05"

// Client defines the Jotform operations used by ingest.
type Client interface {
	// User returns the username the API key belongs to.
	User(ctx context.Context) (string, error)
	SubmissionsPage(ctx context.Context, formID string, offset, limit int) ([]Submission, error)
}

// Submission is one form submission with its answers flattened by question
// name.
type Submission struct {
	ID        string
	FormID    string
	Status    string
	CreatedAt time.Time
	Answers   map[string]any
}

type envelope struct {
	ResponseCode int             `json:"responseCode"`
	Message      string          `json:"message"`
	Content      json.RawMessage `json:"content"`
}

type rawSubmission struct {
	ID        string               `json:"id"`
	FormID    string               `json:"form_id"`
	Status    string               `json:"status"`
	CreatedAt string               `json:"created_at"`
	Answers   map[string]rawAnswer `json:"answers"`
}

type rawAnswer struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Answer any    `json:"answer"`
}

// Option configures the Jotform client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default of 5 req/s. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithLocation sets the time zone submission timestamps are recorded in.
func WithLocation(loc *time.Location) Option {
	return func(c *httpClient) {
		if loc != nil {
			c.loc = loc
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	loc     *time.Location
}

// NewClient creates a new Jotform client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(5, 1),
		retry:   resilience.DefaultRetryConfig(),
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("jotform", "get")
	}
	return c
}

func (c *httpClient) User(ctx context.Context) (string, error) {
	var user struct {
		Username string `json:"username"`
	}
	if err := c.get(ctx, "/user", nil, &user); err != nil {
		return "", eris.Wrap(err, "jotform: get user")
	}
	return user.Username, nil
}

func (c *httpClient) SubmissionsPage(ctx context.Context, formID string, offset, limit int) ([]Submission, error) {
	q := url.Values{
		"offset":  {strconv.Itoa(offset)},
		"limit":   {strconv.Itoa(limit)},
		"orderby": {"id"},
	}
	var raws []rawSubmission
	if err := c.get(ctx, "/form/"+url.PathEscape(formID)+"/submissions", q, &raws); err != nil {
		return nil, eris.Wrapf(err, "jotform: form %s submissions at offset %d", formID, offset)
	}

	subs := make([]Submission, 0, len(raws))
	for _, r := range raws {
		sub := Submission{
			ID:      r.ID,
			FormID:  r.FormID,
			Status:  r.Status,
			Answers: make(map[string]any, len(r.Answers)),
		}
		if r.CreatedAt != "" {
			ts, err := time.ParseInLocation(createdAtLayout, r.CreatedAt, c.loc)
			if err != nil {
				return nil, eris.Wrapf(err, "jotform: parse created_at of submission %s", r.ID)
			}
			sub.CreatedAt = ts.UTC()
		}
		for qid, a := range r.Answers {
			name := a.Name
			if name == "" {
				name = "q" + qid
			}
			if a.Answer != nil {
				sub.Answers[name] = a.Answer
			}
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// get issues one GET, retrying transient failures, and decodes the
// envelope content into out.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.apiKey)
	reqURL := c.baseURL + path + "?" + query.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "jotform: rate limit")
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "jotform: create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "jotform: request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "jotform: read response body")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("jotform: unexpected status %d: %s", resp.StatusCode, truncate(data, 200))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrap(err, "jotform: unmarshal envelope")
	}
	if env.ResponseCode != 0 && env.ResponseCode != http.StatusOK {
		return eris.Errorf("jotform: response code %d: %s", env.ResponseCode, env.Message)
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return eris.Wrap(err, "jotform: unmarshal content")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
