package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/oceancheck/internal/llm"
	"github.com/dshills/oceancheck/internal/schema"
	"github.com/dshills/oceancheck/internal/store"
)

const sampleDump = "Dev | name: Alice | statuses_count: 3 | location: Earth " +
	"| created_at: Mon | favorite_count: 2 | is_quote_status: False Hello world | lang: en"

const assessmentResponse = `{"ocean":{"o":4,"c":3,"e":2,"a":4,"n":1},"explanation":"Curious and kind."}`

// constProvider answers every call with the same response or error. It is
// safe for the concurrent calls made by analyze.
type constProvider struct {
	response string
	err      error
	mu       sync.Mutex
	calls    int
}

func (p *constProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.response, p.err
}

func injectProvider(t *testing.T, p llm.Provider) {
	t.Helper()
	orig := llm.NewProvider
	llm.NewProvider = func(_, _ string) (llm.Provider, error) { return p, nil }
	t.Cleanup(func() { llm.NewProvider = orig })
}

// fakeExa answers the contents endpoint with dumps keyed by profile URL.
func fakeExa(t *testing.T, dumps map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		text, ok := dumps[req.IDs[0]]
		if !ok {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{{"id": req.IDs[0], "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testEnv isolates the CLI from the host environment and returns the output
// directory.
func testEnv(t *testing.T, exaURL string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "outputs")
	t.Setenv("OCEANCHECK_PROVIDER", "")
	t.Setenv("OCEANCHECK_MODEL", "mock")
	t.Setenv("OCEANCHECK_OUT_DIR", dir)
	t.Setenv("EXA_API_KEY", "test-key")
	t.Setenv("EXA_BASE_URL", exaURL)
	return dir
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "absent.env"))
	code := execute(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestParse_Stdin(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	res := run(t, sampleDump, "parse", "-")
	require.Equal(t, 0, res.code, res.stderr)

	var outcome schema.ParseOutcome
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &outcome))
	require.True(t, outcome.Success)
	require.NotNil(t, outcome.Data)
	assert.Equal(t, "Alice", *outcome.Data.Profile.Name)
	assert.Equal(t, "Earth", *outcome.Data.Profile.Location)
	require.Len(t, outcome.Data.Posts, 1)
	assert.Equal(t, "Hello world", outcome.Data.Posts[0].Text)
	assert.False(t, outcome.Data.Posts[0].IsQuoteStatus)
	assert.Equal(t, 2, *outcome.Data.Posts[0].FavoriteCount)
}

func TestParse_File(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	path := filepath.Join(t.TempDir(), "dump.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleDump), 0o600))

	res := run(t, "", "parse", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"success": true`)
}

func TestParse_MissingFile_ExitsThree(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	res := run(t, "", "parse", filepath.Join(t.TempDir(), "nope.txt"))
	assert.Equal(t, exitCodeBadInput, res.code)
}

func TestAnalyze_EndToEnd(t *testing.T) {
	srv := fakeExa(t, map[string]string{
		"https://x.com/alice": sampleDump,
		"https://x.com/bob":   "Bob | name: Bob | statuses_count: 1 | lang: en | created_at: Tue | is_quote_status: True hi there | lang: en",
	})
	dir := testEnv(t, srv.URL)
	p := &constProvider{response: assessmentResponse}
	injectProvider(t, p)

	res := run(t, "", "analyze", "@alice", "bob", "--format", "json")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 2, p.calls)

	var runID string
	for _, u := range []string{"alice", "bob"} {
		r, err := store.Load(filepath.Join(dir, u+".tmp"))
		require.NoError(t, err, u)
		assert.Equal(t, u, r.Username)
		assert.Equal(t, "https://x.com/"+u, r.ProfileURL)
		assert.Equal(t, 1, r.PostCount)
		require.NotNil(t, r.Analysis.OCEAN)
		assert.Equal(t, 4.0, r.Analysis.OCEAN.O)
		assert.Equal(t, "mock", r.Meta.Model)
		_, err = uuid.Parse(r.RunID)
		assert.NoError(t, err)
		if runID == "" {
			runID = r.RunID
		}
		assert.Equal(t, runID, r.RunID, "one run id per invocation")
	}
	assert.Contains(t, res.stdout, `"username": "alice"`)
	assert.Contains(t, res.stderr, "saved @bob")
}

func TestAnalyze_MissingExaKey_ExitsThree(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	t.Setenv("EXA_API_KEY", "")
	res := run(t, "", "analyze", "alice")
	assert.Equal(t, exitCodeBadInput, res.code)
	assert.Contains(t, res.stderr, "EXA_API_KEY")
}

func TestAnalyze_NoResults_ExitsFour(t *testing.T) {
	srv := fakeExa(t, nil)
	testEnv(t, srv.URL)
	injectProvider(t, &constProvider{response: assessmentResponse})

	res := run(t, "", "analyze", "ghost")
	assert.Equal(t, exitCodeAPIError, res.code)
}

func TestAnalyze_ProviderError_ExitsFour(t *testing.T) {
	srv := fakeExa(t, map[string]string{"https://x.com/alice": sampleDump})
	testEnv(t, srv.URL)
	injectProvider(t, &constProvider{err: errors.New("simulated API error")})

	res := run(t, "", "analyze", "alice")
	assert.Equal(t, exitCodeAPIError, res.code)
}

func TestAnalyze_InvalidOutput_ExitsFive(t *testing.T) {
	srv := fakeExa(t, map[string]string{"https://x.com/alice": sampleDump})
	dir := testEnv(t, srv.URL)
	injectProvider(t, &constProvider{response: "not json at all"})

	res := run(t, "", "analyze", "alice")
	assert.Equal(t, exitCodeBadOutput, res.code)
	_, err := os.Stat(filepath.Join(dir, "alice.tmp"))
	assert.True(t, os.IsNotExist(err), "no report is saved on failure")
}

func saveScored(t *testing.T, dir, user string, o schema.OCEAN) {
	t.Helper()
	_, err := store.Save(dir, &schema.Report{
		Username: user,
		Analysis: schema.Assessment{OCEAN: &o, Explanation: user + " explained"},
	})
	require.NoError(t, err)
}

func TestCompare(t *testing.T) {
	dir := testEnv(t, "http://127.0.0.1:1")
	saveScored(t, dir, "alice", schema.OCEAN{O: 4, C: 3, E: 2, A: 4, N: 1})
	saveScored(t, dir, "bob", schema.OCEAN{O: 2, C: 3, E: 2, A: 4, N: 2})
	injectProvider(t, &constProvider{response: `{"score":70,"explanation":"Mostly aligned."}`})

	res := run(t, "", "compare", "@alice", "bob.tmp", "--format", "json")
	require.Equal(t, 0, res.code, res.stderr)

	var got schema.CompatibilityReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, []string{"alice", "bob"}, got.Users)
	assert.Equal(t, 88, got.LocalScore)
	assert.Equal(t, "HIGH", got.LocalLabel)
	assert.Equal(t, 2.0, got.Deltas.O)
	require.NotNil(t, got.Model.Score)
	assert.Equal(t, 70, *got.Model.Score)

	_, err := os.Stat(filepath.Join(dir, "alice_bob.couple.json"))
	assert.NoError(t, err)
}

func TestCompare_BadInput_ExitsThree(t *testing.T) {
	dir := testEnv(t, "http://127.0.0.1:1")
	saveScored(t, dir, "alice", schema.OCEAN{O: 4})
	injectProvider(t, &constProvider{response: `{"score":70,"explanation":"x"}`})

	for name, args := range map[string][]string{
		"missing report": {"compare", "alice", "nobody"},
		"same user":      {"compare", "alice", "@alice"},
	} {
		res := run(t, "", args...)
		assert.Equal(t, exitCodeBadInput, res.code, name)
	}
}

func TestList(t *testing.T) {
	dir := testEnv(t, "http://127.0.0.1:1")
	res := run(t, "", "list")
	require.Equal(t, 0, res.code)
	assert.Empty(t, res.stdout)

	saveScored(t, dir, "bob", schema.OCEAN{})
	saveScored(t, dir, "alice", schema.OCEAN{})
	res = run(t, "", "list")
	require.Equal(t, 0, res.code)
	assert.Equal(t, "alice.tmp\nbob.tmp\n", res.stdout)
}

func TestBadConfig_ExitsThree(t *testing.T) {
	testEnv(t, "http://127.0.0.1:1")
	for _, args := range [][]string{
		{"list", "--provider", "cohere"},
		{"list", "--format", "yaml"},
		{"list", "--concurrency", "0"},
	} {
		res := run(t, "", args...)
		assert.Equal(t, exitCodeBadInput, res.code, fmt.Sprint(args))
	}
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, exitCodeBadOutput, codeOf(modelError(fmt.Errorf("x: %w", llm.ErrInvalidModelOutput))))
	assert.Equal(t, exitCodeAPIError, codeOf(modelError(errors.New("timeout"))))
}

func codeOf(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeError
}
