// Package givebutter provides a client for the Givebutter fundraising API.
package givebutter

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
const DefaultBaseURL = "https://api.givebutter.com/v1"

// ErrPageCeiling is returned when a listing reports more pages than the
// configured maximum.
var ErrPageCeiling = eris.New("givebutter: page ceiling reached")

// Client defines the Givebutter operations used by ingest.
type Client interface {
	// Ping lists one campaign and returns the number of campaigns visible
	// to the API key.
	Ping(ctx context.Context) (int, error)
	ContactsPage(ctx context.Context, page int) (*Page[Contact], error)
	MembersPage(ctx context.Context, campaignID string, page int) (*Page[Member], error)
	AllContacts(ctx context.Context) ([]Contact, error)
	AllMembers(ctx context.Context, campaignID string) ([]Member, error)
}

// Meta is the pagination block of every list response.
type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// Contact is a row of the account-wide contact list.
type Contact struct {
	ID           int64      `json:"id"`
	ExternalID   string     `json:"external_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PrimaryEmail string     `json:"primary_email"`
	PrimaryPhone string     `json:"primary_phone"`
	Emails       []Channel  `json:"emails"`
	Phones       []Channel  `json:"phones"`
	Tags         []string   `json:"tags"`
	CreatedAt    *time.Time `json:"created_at"`
}

// Channel is one typed email address or phone number.
type Channel struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Email returns the primary email, falling back to the first listed one.
func (c Contact) Email() string {
	if c.PrimaryEmail != "" {
		return c.PrimaryEmail
	}
	for _, e := range c.Emails {
		if e.Value != "" {
			return e.Value
		}
	}
	return ""
}

// Phone returns the primary phone, falling back to the first listed one.
func (c Contact) Phone() string {
	if c.PrimaryPhone != "" {
		return c.PrimaryPhone
	}
	for _, p := range c.Phones {
		if p.Value != "" {
			return p.Value
		}
	}
	return ""
}

// Member is a campaign fundraising member.
type Member struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Goal      float64 `json:"goal"`
	Raised    float64 `json:"raised"`
	Donors    int     `json:"donors"`
	URL       string  `json:"url"`
}

// Option configures the Givebutter client.
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

// WithRateLimit overrides the default of 2 req/s. Zero disables limiting.
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

// WithMaxPages caps how many pages AllContacts and AllMembers will follow.
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	maxPages int
}

// NewClient creates a new Givebutter client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(2, 1),
		retry:    resilience.DefaultRetryConfig(),
		maxPages: 1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("givebutter", "get")
	}
	return c
}

func (c *httpClient) Ping(ctx context.Context) (int, error) {
	var page Page[json.RawMessage]
	if err := c.get(ctx, "/campaigns", url.Values{"per_page": {"1"}}, &page); err != nil {
		return 0, eris.Wrap(err, "givebutter: ping")
	}
	return page.Meta.Total, nil
}

func (c *httpClient) ContactsPage(ctx context.Context, page int) (*Page[Contact], error) {
	var out Page[Contact]
	if err := c.get(ctx, "/contacts", pageQuery(page), &out); err != nil {
		return nil, eris.Wrapf(err, "givebutter: contacts page %d", page)
	}
	return &out, nil
}

func (c *httpClient) MembersPage(ctx context.Context, campaignID string, page int) (*Page[Member], error) {
	path := "/campaigns/" + url.PathEscape(campaignID) + "/members"
	var out Page[Member]
	if err := c.get(ctx, path, pageQuery(page), &out); err != nil {
		return nil, eris.Wrapf(err, "givebutter: members page %d", page)
	}
	return &out, nil
}

func (c *httpClient) AllContacts(ctx context.Context) ([]Contact, error) {
	return collect(ctx, c.maxPages, c.ContactsPage)
}

func (c *httpClient) AllMembers(ctx context.Context, campaignID string) ([]Member, error) {
	return collect(ctx, c.maxPages, func(ctx context.Context, page int) (*Page[Member], error) {
		return c.MembersPage(ctx, campaignID, page)
	})
}

// collect follows pages from 1 until meta.last_page. A response without a
// last page stops at the first short or empty page.
func collect[T any](ctx context.Context, maxPages int, fetch func(context.Context, int) (*Page[T], error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, eris.Wrapf(ErrPageCeiling, "after %d pages", maxPages)
		}
		p, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Data...)

		if p.Meta.LastPage > 0 {
			if page >= p.Meta.LastPage {
				return all, nil
			}
			continue
		}
		if len(p.Data) == 0 || (p.Meta.PerPage > 0 && len(p.Data) < p.Meta.PerPage) {
			return all, nil
		}
	}
}

func pageQuery(page int) url.Values {
	return url.Values{"page": {strconv.Itoa(page)}}
}

// get issues one authenticated GET, retrying transient failures, and decodes
// the JSON body into out.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "givebutter: rate limit")
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "givebutter: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "givebutter: request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "givebutter: read response body")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("givebutter: unexpected status %d: %s", resp.StatusCode, truncate(data, 200))
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

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "givebutter: unmarshal response")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
