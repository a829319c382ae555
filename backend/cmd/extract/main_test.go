package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkboard/backend/internal/adapter"
	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/prompt"
	"linkboard/backend/internal/session"
	"linkboard/backend/internal/sourcetext"
	apperrors "linkboard/backend/pkg/errors"
)

type mockInferer struct {
	response string
	err      error
	block    bool
}

func (m *mockInferer) Infer(ctx context.Context, p prompt.Prompt, s adapter.Settings) (string, error) {
	if m.block {
		<-ctx.Done()
		return "", apperrors.NewCancelled("inference", ctx.Err())
	}
	return m.response, m.err
}

const response = `{"nodes":[{"label":"Alice","nodeType":"Person","role":"CFO"},{"label":"Acme Corp","nodeType":"Organization"}],` +
	`"edges":[{"sourceLabel":"Alice","targetLabel":"Acme Corp","relationship":"Professional","customLabel":"works at"}]}`

func newSession(inf session.Inferer, store graph.Store) *session.Session {
	return session.New(session.Options{Inferer: inf, Store: store}, adapter.Settings{Model: "llama3.1"})
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	textFile := filepath.Join(dir, "note.txt")
	htmlFile := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(textFile, []byte("Alice met Bob."), 0o644))
	require.NoError(t, os.WriteFile(htmlFile, []byte("<body><nav>Menu</nav><p>Carol met Dave.</p></body>"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Erin paid Frank.</p></body></html>"))
	}))
	defer srv.Close()
	fetcher := sourcetext.NewFetcher(srv.Client())

	tests := []struct {
		name  string
		opts  runOptions
		stdin string
		want  string
	}{
		{"stdin", runOptions{}, "From stdin.", "From stdin."},
		{"file", runOptions{file: textFile}, "", "Alice met Bob."},
		{"html file", runOptions{file: htmlFile, html: true}, "", "Carol met Dave."},
		{"html stdin", runOptions{html: true}, "<p>Gina</p>", "Gina"},
		{"url", runOptions{url: srv.URL}, "", "Erin paid Frank."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSource(context.Background(), tt.opts, strings.NewReader(tt.stdin), fetcher)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := readSource(context.Background(), runOptions{file: filepath.Join(dir, "missing.txt")}, nil, fetcher)
	assert.Error(t, err)
}

func TestExtract_PrintsProposals(t *testing.T) {
	var out bytes.Buffer
	err := extract(context.Background(), newSession(&mockInferer{response: response}, graph.NewMemoryStore()),
		"Alice is the CFO of Acme Corp.", runOptions{}, &out)
	require.NoError(t, err)

	printed := out.String()
	assert.Contains(t, printed, "Alice")
	assert.Contains(t, printed, "CFO")
	assert.Contains(t, printed, "Alice -> Acme Corp")
	assert.Contains(t, printed, "works at")
	assert.Contains(t, printed, "pending")
}

func TestExtract_AcceptAndCommit(t *testing.T) {
	store := graph.NewMemoryStore()
	var out bytes.Buffer

	err := extract(context.Background(), newSession(&mockInferer{response: response}, store),
		"Alice is the CFO of Acme Corp.", runOptions{acceptAll: true, commit: true}, &out)
	require.NoError(t, err)
	printed := out.String()
	assert.Contains(t, printed, "committed: 2 nodes created, 0 reused, 1 edges created, 0 skipped")
	assert.Contains(t, printed, "Acme Corp")
	assert.Contains(t, printed, "Alice -> Acme Corp")
	assert.Contains(t, printed, "accepted")

	g, err := store.ReadGraph(context.Background())
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)
}

func TestExtract_JSON(t *testing.T) {
	var out bytes.Buffer
	err := extract(context.Background(), newSession(&mockInferer{response: response}, graph.NewMemoryStore()),
		"text", runOptions{asJSON: true, acceptAll: true}, &out)
	require.NoError(t, err)

	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, "review", snap["phase"])
	assert.Equal(t, 3.0, snap["accepted_count"])
}

func TestExtract_JSONWithCommit(t *testing.T) {
	var out bytes.Buffer
	err := extract(context.Background(), newSession(&mockInferer{response: response}, graph.NewMemoryStore()),
		"text", runOptions{asJSON: true, acceptAll: true, commit: true}, &out)
	require.NoError(t, err)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, 2.0, body["result"]["nodes_created"])
	assert.Equal(t, "review", body["session"]["phase"])
	assert.Len(t, body["session"]["nodes"], 2)
}

func TestExtract_FailureMessage(t *testing.T) {
	err := extract(context.Background(), newSession(&mockInferer{response: `{"nodes":[],"edges":[]}`}, graph.NewMemoryStore()),
		"text", runOptions{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNoEntitiesFound.UserMessage(), err.Error())
}

func TestExtract_CancelledIsQuiet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := extract(ctx, newSession(&mockInferer{block: true}, graph.NewMemoryStore()), "text", runOptions{}, &out)
	assert.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestRootCmd_CommitNeedsAcceptAll(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GRAPH_BACKEND", "memory")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--commit"})
	cmd.SetIn(strings.NewReader("text"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--accept-all")
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
