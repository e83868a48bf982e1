package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeJotform serves two forms mirroring the signup and setup layouts.
func fakeJotform(t *testing.T) *httptest.Server {
	t.Helper()
	forms := map[string][]map[string]any{
		"signup": {
			submission("s1", map[string]any{
				"mnId":          "MN001",
				"mentorName":    map[string]any{"first": "Ada", "last": "Lovelace"},
				"phoneNumber":   map[string]any{"full": "(404) 555-1234"},
				"personalEmail": "ada@example.com",
			}),
			submission("s2", map[string]any{
				"mnId":        "MN002",
				"mentorName":  map[string]any{"first": "Bo", "last": "Diddley"},
				"phoneNumber": map[string]any{"full": "(404) 555-0199"},
				"uwEmail":     "bo@uw.edu",
			}),
			submission("s3", map[string]any{
				"mnId":        "MN003",
				"mentorName":  map[string]any{"first": "Cy", "last": "Young"},
				"phoneNumber": map[string]any{"full": "404-555-7777"},
			}),
		},
		"setup": {
			submission("u1", map[string]any{
				"mnId":        "MN001",
				"name":        "Ada Lovelace",
				"phoneNumber": "4045551234",
				"email":       "ada@example.com",
			}),
		},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "jf-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var content any
		switch {
		case r.URL.Path == "/user":
			content = map[string]string{"username": "mentors"}
		case strings.HasPrefix(r.URL.Path, "/form/"):
			formID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/form/"), "/submissions")
			content = []map[string]any{}
			if r.URL.Query().Get("offset") == "0" {
				content = forms[formID]
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"responseCode": 200, "content": content}) //nolint:errcheck
	}))
}

func submission(id string, answers map[string]any) map[string]any {
	out := make(map[string]any, len(answers))
	i := 1
	for name, a := range answers {
		out[strconv.Itoa(i)] = map[string]any{"name": name, "answer": a}
		i++
	}
	return map[string]any{"id": id, "status": "ACTIVE", "created_at": "2025-09-01 12:00:00", "answers": out}
}

func fakeGivebutter(t *testing.T) *httptest.Server {
	t.Helper()
	page := func(data any) map[string]any {
		return map[string]any{"data": data, "meta": map[string]any{"current_page": 1, "last_page": 1, "per_page": 100, "total": 1}}
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gb-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body any
		switch r.URL.Path {
		case "/campaigns":
			body = page([]map[string]any{{"id": 1}})
		case "/campaigns/CQVG3W/members":
			body = page([]map[string]any{
				{"id": 501, "first_name": "Ada", "last_name": "Lovelace", "phone": "4045551234", "raised": 80, "goal": 75},
			})
		case "/contacts":
			body = page([]map[string]any{
				{"id": 77, "first_name": "Ada", "last_name": "Lovelace", "primary_phone": "+14045551234", "tags": []string{}},
				{"id": 88, "first_name": "Cy", "last_name": "Young", "primary_phone": "+14045557777", "tags": []string{"dropped"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "mentor-sync.db")
	c.Source.PageSize = 100
	c.Source.MaxPages = 10
	c.Source.RetryAttempts = 1
	c.Reconcile.FundraisingThreshold = 75
	c.Reconcile.WithdrawnTag = "Dropped"
	c.Reconcile.StagingTags = []string{"Mentors 2025"}
	c.Jotform.SignupFormID = "signup"
	c.Jotform.SetupFormID = "setup"
	c.Jotform.PageSize = 100
	c.Jotform.RateLimit = 1000
	c.Givebutter.CampaignID = "CQVG3W"
	c.Givebutter.RateLimit = 1000
	return c
}

// withAPIs points c at fresh fake API servers.
func withAPIs(t *testing.T, c *config.Config) {
	t.Helper()
	jf := fakeJotform(t)
	t.Cleanup(jf.Close)
	gb := fakeGivebutter(t)
	t.Cleanup(gb.Close)

	c.Jotform.APIKey = "jf-key"
	c.Jotform.BaseURL = jf.URL
	c.Givebutter.APIKey = "gb-key"
	c.Givebutter.BaseURL = gb.URL
}

func testStore(t *testing.T, c *config.Config) store.Store {
	t.Helper()
	st, err := openStore(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}
