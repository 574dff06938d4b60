package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/siherrmann/docqa/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQueryConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultQueryConfig()

		assert.Equal(t, 5, config.TopK, "Default TopK should be 5")
		assert.Equal(t, 0.3, config.SimilarityThreshold, "Default SimilarityThreshold should be 0.3")
		assert.Equal(t, 10, config.MaxDocuments, "Default MaxDocuments should be 10")
		assert.Nil(t, config.DocumentRIDs, "Default should search all documents")
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Run("Defaults are valid", func(t *testing.T) {
		config := DefaultConfig()
		require.NoError(t, helper.ValidateStruct(config))
	})

	t.Run("Defaults match documented values", func(t *testing.T) {
		config := DefaultConfig()

		assert.Equal(t, ChunkingConfig{Size: 500, Overlap: 50, MinSize: 100}, config.Chunking)
		assert.Equal(t, 16, config.Embedding.BatchSize)
		assert.Equal(t, 30*time.Second, config.Embedding.RequestTimeout)
		assert.Equal(t, 60*time.Second, config.Chat.RequestTimeout)
		assert.Equal(t, 0.3, config.Chat.Temperature)
		assert.Equal(t, 1000, config.Chat.MaxTokens)
		assert.Equal(t, 6000, config.Synthesis.ContextBudget)
		assert.Equal(t, IndexBackendSQLite, config.Index.Backend)
		assert.Equal(t, "rag_documents", config.Index.Collection)
		assert.False(t, config.Entities.Enabled)
	})

	t.Run("Retry config converts to policy", func(t *testing.T) {
		policy := DefaultConfig().Embedding.Retry.Policy()

		assert.Equal(t, 4, policy.MaxAttempts)
		assert.Equal(t, 250*time.Millisecond, policy.BaseDelay)
		assert.Equal(t, 8*time.Second, policy.MaxDelay)
	})
}

func TestConfigApplyEnv(t *testing.T) {
	t.Run("Reads Azure variables for both models", func(t *testing.T) {
		t.Setenv("AZURE_OPENAI_API_KEY", "secret")
		t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
		t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-test")
		t.Setenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME", "embed-test")

		config := DefaultConfig()
		config.ApplyEnv()

		assert.Equal(t, "secret", config.Embedding.APIKey)
		assert.Equal(t, "secret", config.Chat.APIKey)
		assert.Equal(t, "https://example.openai.azure.com", config.Chat.BaseURL)
		assert.Equal(t, "gpt-test", config.Chat.Model)
		assert.Equal(t, "embed-test", config.Embedding.Model)
	})

	t.Run("Project variables win over Azure variables", func(t *testing.T) {
		t.Setenv("AZURE_OPENAI_API_KEY", "azure")
		t.Setenv("DOCQA_API_KEY", "docqa")
		t.Setenv("DOCQA_INDEX_BACKEND", "qdrant")
		t.Setenv("CHUNK_SIZE", "800")
		t.Setenv("CHUNK_OVERLAP", "80")

		config := DefaultConfig()
		config.ApplyEnv()

		assert.Equal(t, "docqa", config.Chat.APIKey)
		assert.Equal(t, IndexBackendQdrant, config.Index.Backend)
		assert.Equal(t, 800, config.Chunking.Size)
		assert.Equal(t, 80, config.Chunking.Overlap)
	})

	t.Run("Ignores malformed numbers", func(t *testing.T) {
		t.Setenv("CHUNK_SIZE", "large")

		config := DefaultConfig()
		config.ApplyEnv()

		assert.Equal(t, 500, config.Chunking.Size)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("Loads YAML over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docqa.yaml")
		content := `
chunking:
  size: 300
  overlap: 30
  min_size: 50
chat:
  model: gpt-4o
  request_timeout: 15s
index:
  backend: postgres
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		config := DefaultConfig()
		require.NoError(t, helper.LoadConfig(path, config))

		assert.Equal(t, 300, config.Chunking.Size)
		assert.Equal(t, "gpt-4o", config.Chat.Model)
		assert.Equal(t, 15*time.Second, config.Chat.RequestTimeout)
		assert.Equal(t, IndexBackendPostgres, config.Index.Backend)
		assert.Equal(t, 6000, config.Synthesis.ContextBudget, "Unset values should keep defaults")
	})

	t.Run("Rejects unknown backend", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docqa.yaml")
		require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: redis\n"), 0600))

		err := helper.LoadConfig(path, DefaultConfig())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validate config")
	})
}

func TestModelEndpointRestClient(t *testing.T) {
	t.Run("Azure endpoint addresses deployment with api key", func(t *testing.T) {
		var path, apiKey, version string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			apiKey = r.Header.Get("api-key")
			version = r.URL.Query().Get("api-version")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		endpoint := ModelEndpoint{Provider: ProviderAzure, BaseURL: server.URL, APIKey: "key", APIVersion: "2023-05-15", Model: "ada"}
		_, err := endpoint.RestClient(nil).Post(context.Background(), "embeddings", struct{}{})
		require.NoError(t, err)

		assert.Equal(t, "/openai/deployments/ada/embeddings", path)
		assert.Equal(t, "key", apiKey)
		assert.Equal(t, "2023-05-15", version)
	})

	t.Run("OpenAI endpoint uses bearer token", func(t *testing.T) {
		var path, auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		endpoint := ModelEndpoint{Provider: ProviderOpenAI, BaseURL: server.URL + "/v1", APIKey: "sk-test", Model: "gpt"}
		_, err := endpoint.RestClient(nil).Post(context.Background(), "chat/completions", struct{}{})
		require.NoError(t, err)

		assert.Equal(t, "/v1/chat/completions", path)
		assert.Equal(t, "Bearer sk-test", auth)
	})
}
