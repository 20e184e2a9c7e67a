package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/photo-game/internal/imaging"
)

func TestAnthropicGenerateSendsImageAndPrompt(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"a kitchen"},{"type":"text","text":" scene"}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{APIKey: "test-key", Model: "m", BaseURL: srv.URL})
	out, err := a.Generate(context.Background(), Request{
		Prompt:    "describe",
		Image:     &imaging.EncodedImage{Base64: "QUJD"},
		MaxTokens: 123,
	})
	require.NoError(t, err)
	assert.Equal(t, "a kitchen scene", out)

	assert.Equal(t, "m", got.Model)
	assert.Equal(t, 123, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "QUJD", blocks[0].Source.Data)
	assert.Equal(t, "image/jpeg", blocks[0].Source.MediaType)
	assert.Equal(t, "describe", blocks[1].Text)
}

func TestAnthropicGenerateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := a.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
}

func TestAnthropicGenerateEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(Config{APIKey: "k", Model: "m", BaseURL: srv.URL})
	_, err := a.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderAnthropic})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "other", APIKey: "k"})
	assert.Error(t, err)
}

func TestNewAnthropicDefaults(t *testing.T) {
	g, err := New(context.Background(), Config{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	a := g.(*Anthropic)
	assert.Equal(t, DefaultModel(ProviderAnthropic), a.model)
	assert.Equal(t, "https://api.anthropic.com/v1", a.baseURL)
}
