package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chatServer returns an httptest server that answers every chat completion
// with the given message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":   0,
					"message": map[string]any{"role": "assistant", "content": content},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(baseURL string) *Client {
	return New(Config{
		APIKey:  "test-key",
		BaseURL: baseURL + "/v1",
		Model:   "gpt-4o-mini",
		Logger:  zap.NewNop(),
	})
}

func TestParseJDAppliesDefaults(t *testing.T) {
	srv := chatServer(t, `{"title":"Director of Behavioral Health","min_years_experience":10}`)
	defer srv.Close()

	jd, err := newTestClient(srv.URL).ParseJD(context.Background(), "raw jd text")
	require.NoError(t, err)
	require.Equal(t, "Director of Behavioral Health", jd.Title)
	require.Equal(t, 10, jd.MinYearsExperience)
	// Optional fields get explicit defaults, never nil.
	require.NotNil(t, jd.Domains)
	require.NotNil(t, jd.MustHaveSkills)
	require.Equal(t, "unknown", jd.Seniority)
}

func TestEnrichProfileStripsFences(t *testing.T) {
	srv := chatServer(t, "```json\n{\"name\":\"Jane Doe\",\"years_experience\":12}\n```")
	defer srv.Close()

	enr, err := newTestClient(srv.URL).EnrichProfile(context.Background(), "corpus")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", enr.Name)
	require.Equal(t, 12.0, enr.YearsExperience)
	require.NotNil(t, enr.Skills)
	require.NotNil(t, enr.Experience)
}

func TestSchemaMismatchIsRecoverable(t *testing.T) {
	srv := chatServer(t, "I could not produce JSON, sorry.")
	defer srv.Close()

	_, err := newTestClient(srv.URL).EnrichProfile(context.Background(), "corpus")
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestGenerateQueriesCapsCount(t *testing.T) {
	srv := chatServer(t, `{"queries":["q1","  ","q2","q3","q4"]}`)
	defer srv.Close()

	queries, err := newTestClient(srv.URL).GenerateQueries(context.Background(), "summary", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2", "q3"}, queries)
}

func TestSynthesizeProfileBackfillsIdentity(t *testing.T) {
	srv := chatServer(t, `{"headline":"Seasoned clinical leader","skills":["leadership"]}`)
	defer srv.Close()

	enr, err := newTestClient(srv.URL).SynthesizeProfile(context.Background(),
		"Pat Smith", "Clinical Director", "Acme Health")
	require.NoError(t, err)
	require.Equal(t, "Pat Smith", enr.Name)
	require.Equal(t, "Clinical Director", enr.CurrentTitle)
	require.Equal(t, "Acme Health", enr.CurrentCompany)
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"  {\"a\":1}  ":                `{"a":1}`,
		"```json\n{\"a\": [1,2]}\n```": `{"a": [1,2]}`,
	}
	for in, want := range cases {
		require.Equal(t, want, stripFences(in))
	}
}
