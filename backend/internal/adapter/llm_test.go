package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkboard/backend/internal/prompt"
	"linkboard/backend/pkg/config"
	apperrors "linkboard/backend/pkg/errors"
)

func testSettings(srv *httptest.Server, provider string) Settings {
	return Settings{
		Provider:    provider,
		Endpoint:    srv.URL + "/v1/chat/completions",
		Model:       "llama3.1",
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "llama3.1",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(b)
}

func TestInfer_SendsSingleRequest(t *testing.T) {
	var calls int
	var body map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(`{"nodes":[],"edges":[]}`)))
	}))
	defer srv.Close()

	s := testSettings(srv, config.ProviderOpenAI)
	s.APIKey = "sk-test"
	out, err := NewLLMAdapter().Infer(context.Background(), prompt.Prompt{System: "sys", User: "user"}, s)

	require.NoError(t, err)
	assert.Equal(t, `{"nodes":[],"edges":[]}`, out)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "llama3.1", body["model"])
	assert.EqualValues(t, 4096, body["max_tokens"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-6)

	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", messages[1].(map[string]interface{})["content"])
}

func TestInfer_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		provider string
		check    func(t *testing.T, err error)
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key","type":"auth"}}`, config.ProviderOpenAI, func(t *testing.T, err error) {
			var target *apperrors.ErrAuth
			require.ErrorAs(t, err, &target)
			assert.Equal(t, 401, target.StatusCode)
		}},
		{"forbidden plain body", 403, `forbidden`, config.ProviderCustom, func(t *testing.T, err error) {
			var target *apperrors.ErrAuth
			require.ErrorAs(t, err, &target)
		}},
		{"model missing on ollama", 404, `{"error":{"message":"model not found"}}`, config.ProviderOllama, func(t *testing.T, err error) {
			var target *apperrors.ErrModelNotFound
			require.ErrorAs(t, err, &target)
			assert.Contains(t, target.UserMessage(), "ollama pull llama3.1")
		}},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, config.ProviderOpenAI, func(t *testing.T, err error) {
			var target *apperrors.ErrRateLimited
			require.ErrorAs(t, err, &target)
		}},
		{"server error", 503, `{"error":{"message":"overloaded"}}`, config.ProviderOpenAI, func(t *testing.T, err error) {
			var target *apperrors.ErrServer
			require.ErrorAs(t, err, &target)
			assert.Equal(t, 503, target.StatusCode)
			assert.Contains(t, target.UserMessage(), "overloaded")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewLLMAdapter().Infer(context.Background(), prompt.Prompt{}, testSettings(srv, tt.provider))
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeInference))
			assert.False(t, apperrors.IsCancelled(err))
			tt.check(t, err)
		})
	}
}

func TestInfer_EmptyContent(t *testing.T) {
	for name, payload := range map[string]string{
		"no choices":   `{"id":"x","choices":[]}`,
		"blank":        completion("   "),
		"not json 2xx": `<html>loading</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(payload))
			}))
			defer srv.Close()

			_, err := NewLLMAdapter().Infer(context.Background(), prompt.Prompt{}, testSettings(srv, config.ProviderOllama))
			var target *apperrors.ErrEmptyResponse
			require.ErrorAs(t, err, &target)
		})
	}
}

func TestInfer_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s := testSettings(srv, config.ProviderOllama)
	srv.Close()

	_, err := NewLLMAdapter().Infer(context.Background(), prompt.Prompt{}, s)

	var target *apperrors.ErrConnection
	require.ErrorAs(t, err, &target)
	assert.Contains(t, target.UserMessage(), "Is Ollama running?")
	assert.False(t, apperrors.IsCancelled(err))
}

func TestInfer_CancelAbortsTransport(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewLLMAdapter().Infer(ctx, prompt.Prompt{}, testSettings(srv, config.ProviderOllama))

	assert.True(t, apperrors.IsCancelled(err))
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("server request was not aborted")
	}
}

func TestInfer_TimeoutIsNotCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := testSettings(srv, config.ProviderOllama)
	s.Timeout = 50 * time.Millisecond
	_, err := NewLLMAdapter().Infer(context.Background(), prompt.Prompt{}, s)

	var target *apperrors.ErrConnection
	require.ErrorAs(t, err, &target)
	assert.False(t, apperrors.IsCancelled(err))
	assert.Contains(t, target.UserMessage(), "timed out")
}

func TestTestConnection_ListsModelsForLocalProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.1","object":"model"},{"id":"mistral","object":"model"}]}`))
	}))
	defer srv.Close()

	res, err := NewLLMAdapter().TestConnection(context.Background(), testSettings(srv, config.ProviderOllama))

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"llama3.1", "mistral"}, res.Models)
}

func TestTestConnection_MinimalCompletionForCloud(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(completion("ok")))
	}))
	defer srv.Close()

	s := testSettings(srv, config.ProviderOpenAI)
	s.APIKey = "sk-test"
	res, err := NewLLMAdapter().TestConnection(context.Background(), s)

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Models)
	assert.EqualValues(t, 5, body["max_tokens"])
	messages := body["messages"].([]interface{})
	assert.Equal(t, "Respond with the word ok", messages[0].(map[string]interface{})["content"])
}

func TestTestConnection_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	s := testSettings(srv, config.ProviderOpenAI)
	s.APIKey = "sk-bad"
	_, err := NewLLMAdapter().TestConnection(context.Background(), s)

	var target *apperrors.ErrAuth
	require.ErrorAs(t, err, &target)
}

func TestSettings(t *testing.T) {
	s := Settings{
		Provider:    config.ProviderOllama,
		Endpoint:    "http://localhost:11434/v1/chat/completions",
		Model:       "llama3.1",
		APIKey:      "secret",
		Temperature: 0.1,
		MaxTokens:   100,
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, "http://localhost:11434/v1", s.baseURL())
	assert.Equal(t, "********", s.Redacted().APIKey)
	assert.Equal(t, "secret", s.APIKey)

	bad := s
	bad.Endpoint = "localhost:11434"
	assert.Error(t, bad.Validate())

	bad = s
	bad.Provider = "azure"
	assert.Error(t, bad.Validate())

	bad = s
	bad.Model = "  "
	assert.True(t, strings.Contains(bad.Validate().Error(), "model"))
}
