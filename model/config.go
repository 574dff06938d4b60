package model

import (
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/helper"
)

// QueryConfig represents configuration for a retrieval query
type QueryConfig struct {
	TopK                int     `json:"top_k" yaml:"top_k" validate:"gte=1"`
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=-1,lte=1"`
	MaxDocuments        int     `json:"max_documents" yaml:"max_documents" validate:"gte=1"`

	// Restricts the query to these documents, all documents when empty
	DocumentRIDs []uuid.UUID `json:"document_rids,omitempty" yaml:"-"`
}

// DefaultQueryConfig returns the default retrieval settings
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                5,
		SimilarityThreshold: 0.3,
		MaxDocuments:        10,
	}
}

// ChunkingConfig controls how document text is split.
type ChunkingConfig struct {
	Size    int `yaml:"size" validate:"gte=1"`
	Overlap int `yaml:"overlap" validate:"gte=0"`
	MinSize int `yaml:"min_size" validate:"gte=0"`
}

// RetryConfig controls retries of remote model calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// Policy converts the configuration into a helper.RetryPolicy.
func (r RetryConfig) Policy() helper.RetryPolicy {
	return helper.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
	}
}

// Provider selects the wire dialect of a model endpoint.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderAzure  Provider = "azure"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// ModelEndpoint describes a remote OpenAI compatible model.
// For Azure the model is the deployment name.
type ModelEndpoint struct {
	Provider          Provider      `yaml:"provider" validate:"oneof=openai azure"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey            string        `yaml:"api_key"`
	APIVersion        string        `yaml:"api_version"`
	Model             string        `yaml:"model" validate:"required"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RestClient builds the JSON client for the endpoint.
// Azure deployments are addressed by path and authenticated with an api-key header.
func (e ModelEndpoint) RestClient(httpClient *http.Client) *helper.RestClient {
	var client *helper.RestClient
	switch e.Provider {
	case ProviderAzure:
		base := strings.TrimRight(e.BaseURL, "/") + "/openai/deployments/" + url.PathEscape(e.Model)
		query := url.Values{}
		if e.APIVersion != "" {
			query.Set("api-version", e.APIVersion)
		}
		client = helper.NewRestClient(base, map[string]string{"api-key": e.APIKey}, query, httpClient)
	default:
		base := e.BaseURL
		if base == "" {
			base = DefaultOpenAIBaseURL
		}
		headers := map[string]string{}
		if e.APIKey != "" {
			headers["Authorization"] = "Bearer " + e.APIKey
		}
		client = helper.NewRestClient(base, headers, nil, httpClient)
	}
	return client.WithRateLimit(e.RequestsPerSecond, e.Burst)
}

// EmbeddingConfig configures the embedding model.
type EmbeddingConfig struct {
	ModelEndpoint `yaml:",inline"`
	Local         bool `yaml:"local"` // Use the bundled hugot model instead of the endpoint
	BatchSize     int  `yaml:"batch_size" validate:"gte=1"`
	MaxBatchChars int  `yaml:"max_batch_chars" validate:"gte=1"`
	Dimensions    int  `yaml:"dimensions" validate:"gte=0"` // Requested from the model when set
}

// ChatConfig configures the reasoning model.
type ChatConfig struct {
	ModelEndpoint `yaml:",inline"`
	Temperature   float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int     `yaml:"max_tokens" validate:"gte=1"`
	JSONMode      bool    `yaml:"json_mode"`
}

// IndexBackend selects the vector index implementation.
type IndexBackend string

const (
	IndexBackendSQLite   IndexBackend = "sqlite"
	IndexBackendPostgres IndexBackend = "postgres"
	IndexBackendQdrant   IndexBackend = "qdrant"
)

// IndexConfig configures the vector index.
type IndexConfig struct {
	Backend    IndexBackend `yaml:"backend" validate:"oneof=sqlite postgres qdrant"`
	Path       string       `yaml:"path"`
	Collection string       `yaml:"collection" validate:"required"`
	Dimension  int          `yaml:"dimension" validate:"gte=1"`
	QdrantHost string       `yaml:"qdrant_host"`
	QdrantPort int          `yaml:"qdrant_port" validate:"gte=0"`
	QdrantKey  string       `yaml:"qdrant_api_key"`
}

// SynthesisConfig configures answer synthesis.
type SynthesisConfig struct {
	ContextBudget int `yaml:"context_budget" validate:"gte=1"` // Characters of evidence text in the prompt
}

// EntityConfig configures the optional entity extraction.
type EntityConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// Config is the complete configuration of the question answering service.
type Config struct {
	Chunking          ChunkingConfig  `yaml:"chunking"`
	Embedding         EmbeddingConfig `yaml:"embedding"`
	Chat              ChatConfig      `yaml:"chat"`
	Index             IndexConfig     `yaml:"index"`
	Retrieval         QueryConfig     `yaml:"retrieval"`
	Synthesis         SynthesisConfig `yaml:"synthesis"`
	Entities          EntityConfig    `yaml:"entities"`
	IngestConcurrency int             `yaml:"ingest_concurrency" validate:"gte=1"`
	LogLevel          string          `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a configuration for Azure OpenAI models and a local SQLite index.
func DefaultConfig() *Config {
	retry := RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
	return &Config{
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 50,
			MinSize: 100,
		},
		Embedding: EmbeddingConfig{
			ModelEndpoint: ModelEndpoint{
				Provider:       ProviderAzure,
				APIVersion:     "2023-05-15",
				Model:          "text-embedding-ada-002",
				RequestTimeout: 30 * time.Second,
				Retry:          retry,
			},
			BatchSize:     16,
			MaxBatchChars: 32000,
		},
		Chat: ChatConfig{
			ModelEndpoint: ModelEndpoint{
				Provider:       ProviderAzure,
				APIVersion:     "2023-05-15",
				Model:          "gpt-4o-mini",
				RequestTimeout: 60 * time.Second,
				Retry:          retry,
			},
			Temperature: 0.3,
			MaxTokens:   1000,
			JSONMode:    true,
		},
		Index: IndexConfig{
			Backend:    IndexBackendSQLite,
			Path:       "./docqa_db",
			Collection: "rag_documents",
			Dimension:  1536,
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Retrieval: DefaultQueryConfig(),
		Synthesis: SynthesisConfig{
			ContextBudget: 6000,
		},
		Entities: EntityConfig{
			Enabled: false,
			Model:   "KnightsAnalytics/distilbert-NER",
		},
		IngestConcurrency: 4,
		LogLevel:          "info",
	}
}

// ApplyEnv reads credentials and endpoints from the environment.
// The AZURE_OPENAI_* names are understood for both models.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Embedding.APIKey, "AZURE_OPENAI_API_KEY", "DOCQA_API_KEY")
	setFromEnv(&c.Chat.APIKey, "AZURE_OPENAI_API_KEY", "DOCQA_API_KEY")
	setFromEnv(&c.Embedding.BaseURL, "AZURE_OPENAI_ENDPOINT", "DOCQA_BASE_URL")
	setFromEnv(&c.Chat.BaseURL, "AZURE_OPENAI_ENDPOINT", "DOCQA_BASE_URL")
	setFromEnv(&c.Embedding.APIVersion, "AZURE_OPENAI_API_VERSION")
	setFromEnv(&c.Chat.APIVersion, "AZURE_OPENAI_API_VERSION")
	setFromEnv(&c.Embedding.Model, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT_NAME", "DOCQA_EMBEDDING_MODEL")
	setFromEnv(&c.Chat.Model, "AZURE_OPENAI_DEPLOYMENT_NAME", "DOCQA_CHAT_MODEL")

	var backend string
	setFromEnv(&backend, "DOCQA_INDEX_BACKEND")
	if backend != "" {
		c.Index.Backend = IndexBackend(backend)
	}
	setFromEnv(&c.Index.Path, "DOCQA_INDEX_PATH")
	setFromEnv(&c.Index.QdrantKey, "QDRANT_API_KEY")

	setIntFromEnv(&c.Chunking.Size, "CHUNK_SIZE")
	setIntFromEnv(&c.Chunking.Overlap, "CHUNK_OVERLAP")
}

func setIntFromEnv(target *int, name string) {
	if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
		*target = n
	}
}

// later names win
func setFromEnv(target *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
}
