package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsProfileURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/in/jane-doe", true},
		{"https://linkedin.com/pub/john-smith/1/2/3", true},
		{"https://www.linkedin.com/jobs/view/123", false},
		{"https://www.linkedin.com/company/acme", false},
		{"https://jobs.lever.co/acme/role", false},
		{"https://boards.greenhouse.io/acme/jobs/1", false},
		{"https://apply.workable.com/acme", false},
		{"https://jobs.ashbyhq.com/acme", false},
		{"https://jobs.smartrecruiters.com/acme", false},
		{"https://example.com/in/jane", false},
		{"not a url ://", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsProfileURL(tc.url), tc.url)
	}
}

func TestNormalizeProfileURL(t *testing.T) {
	require.Equal(t,
		"https://www.linkedin.com/in/jane-doe",
		NormalizeProfileURL("https://www.linkedin.com/in/jane-doe/?trk=search#section"))
}

func TestUsername(t *testing.T) {
	require.Equal(t, "jane-doe", Username("https://www.linkedin.com/in/Jane-Doe"))
	require.Equal(t, "", Username("https://www.linkedin.com/"))
}

func TestSearchFiltersAndTrims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "behavioral health director", r.URL.Query().Get("q"))
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results":[
			{"link":"https://www.linkedin.com/in/a","title":"A","snippet":"sa"},
			{"link":"https://jobs.lever.co/acme/x","title":"board","snippet":"sb"},
			{"link":"https://www.linkedin.com/in/b/","title":"B","snippet":"sb"},
			{"link":"https://www.linkedin.com/in/c","title":"C","snippet":"sc"},
			{"link":"https://www.linkedin.com/in/d","title":"D","snippet":"sd"}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Timeout:  time.Second,
		Logger:   zap.NewNop(),
	})

	results, err := c.Search(context.Background(), "behavioral health director", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "https://www.linkedin.com/in/a", results[0].URL)
	require.Equal(t, "https://www.linkedin.com/in/b", results[1].URL)
	require.Equal(t, "https://www.linkedin.com/in/c", results[2].URL)
}

func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", Endpoint: srv.URL, Logger: zap.NewNop()})
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
}
