package narrative

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/soaringjerry/valuesreport/internal/config"
)

func TestOpenAIGenerate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "resp_1", "object": "response", "created_at": 1, "status": "completed", "model": "gpt-4o-mini",
			"output": [{"type": "message", "id": "msg_1", "role": "assistant", "status": "completed",
				"content": [{"type": "output_text", "text": "  Your values lean toward growth.  ", "annotations": []}]}]
		}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI("sk-test", "", option.WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "openai/"+DefaultOpenAIModel, o.Name())

	text, err := o.Generate(context.Background(), "describe my values")
	require.NoError(t, err)
	assert.Equal(t, "Your values lean toward growth.", text)
	assert.Equal(t, DefaultOpenAIModel, gotBody["model"])
	assert.Equal(t, "describe my values", gotBody["input"])
}

func TestOpenAIClassifiesStatus(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit", "code": "rate_limit"}}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI("sk-test", "gpt-4o-mini", option.WithBaseURL(srv.URL+"/v1/"))
	require.NoError(t, err)

	_, err = o.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusUnauthorized
	_, err = o.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestGeminiGenerate(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": [{"content": {"role": "model", "parts": [{"text": "Balanced values."}]}}]}`)
	}))
	defer srv.Close()

	g, err := newGemini(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, "")
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Balanced values.", text)
	assert.Contains(t, path, DefaultGeminiModel+":generateContent")
}

func TestGeminiRejectedRequestIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	g, err := newGemini(context.Background(), &genai.ClientConfig{
		APIKey:      "bad",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, "gemini-2.0-flash")
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(context.Background(), config.NarrativeConfig{Provider: "openai"})
	assert.Error(t, err)
	_, err = NewProvider(context.Background(), config.NarrativeConfig{Provider: "gemini"})
	assert.Error(t, err)
	_, err = NewProvider(context.Background(), config.NarrativeConfig{Provider: "claude", OpenAIAPIKey: "k"})
	assert.Error(t, err)

	p, err := NewProvider(context.Background(), config.NarrativeConfig{Provider: "openai", OpenAIAPIKey: "k", Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1", p.Name())
}
