package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/core/embedding"
	"github.com/siherrmann/docqa/core/index"
	"github.com/siherrmann/docqa/core/llm"
	"github.com/siherrmann/docqa/core/pipeline"
	"github.com/siherrmann/docqa/core/retrieval"
	"github.com/siherrmann/docqa/core/synthesis"
	"github.com/siherrmann/docqa/database"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	"golang.org/x/sync/errgroup"
)

// DocQA indexes documents and answers questions about them.
type DocQA struct {
	config      *model.Config
	index       index.VectorIndex
	pipeline    *pipeline.Pipeline
	engine      *retrieval.Engine
	synthesizer *synthesis.Synthesizer
	closers     []func() error
	// Logging
	log *slog.Logger
}

// Option customises a DocQA created with New.
type Option func(*DocQA)

// WithLogger sets the logger of all components.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DocQA) {
		d.log = logger
	}
}

// WithCloser registers a function that Close calls, e.g. to release a model session.
func WithCloser(closer func() error) Option {
	return func(d *DocQA) {
		d.closers = append(d.closers, closer)
	}
}

// New wires the given collaborators. A nil config uses model.DefaultConfig.
func New(config *model.Config, vectorIndex index.VectorIndex, p *pipeline.Pipeline, chat llm.ChatFunc, opts ...Option) (*DocQA, error) {
	if vectorIndex == nil {
		return nil, helper.NewError("new docqa", fmt.Errorf("vector index is nil"))
	}
	if p == nil || p.Chunker == nil || p.Embedder == nil {
		return nil, helper.NewError("new docqa", fmt.Errorf("pipeline needs a chunker and an embedder"))
	}
	if chat == nil {
		return nil, helper.NewError("new docqa", fmt.Errorf("chat function is nil"))
	}
	if config == nil {
		config = model.DefaultConfig()
	}

	d := &DocQA{
		config:   config,
		index:    vectorIndex,
		pipeline: p,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.engine = retrieval.NewEngine(p.Embedder, vectorIndex, d.log)
	d.synthesizer = synthesis.NewSynthesizer(chat, config.Synthesis.ContextBudget, d.log)

	return d, nil
}

// NewFromConfig builds the remote model clients, the optional local models and the
// configured index backend. The Postgres backend reads its connection from DOCQA_DB_* variables.
func NewFromConfig(ctx context.Context, config *model.Config) (*DocQA, error) {
	if config == nil {
		config = model.DefaultConfig()
	}
	logger := helper.NewLogger(os.Stdout, parseLevel(config.LogLevel))

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	var embed pipeline.EmbedFunc
	dimension := config.Index.Dimension
	if config.Embedding.Local {
		localEmbed, closeFn, err := pipeline.DefaultEmbedder()
		if err != nil {
			return nil, helper.NewError("create local embedder", err)
		}
		closers = append(closers, closeFn)
		embed = localEmbed
		dimension = pipeline.LocalEmbeddingDimension
	} else {
		client := embedding.NewClient(config.Embedding, logger, nil)
		embed = client.EmbedFunc()
		if config.Embedding.Dimensions > 0 {
			dimension = config.Embedding.Dimensions
		}
	}

	p := pipeline.NewPipeline(
		pipeline.RecursiveChunker(config.Chunking.Size, config.Chunking.Overlap, config.Chunking.MinSize),
		embed,
	)

	if config.Entities.Enabled {
		extract, closeFn, err := pipeline.DefaultEntityExtractor(config.Entities.Model)
		if err != nil {
			closeAll()
			return nil, helper.NewError("create entity extractor", err)
		}
		closers = append(closers, closeFn)
		p.SetEntityExtractor(extract)
	}

	vectorIndex, err := openIndex(ctx, config.Index, dimension, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	chat := llm.NewClient(config.Chat, logger, nil).ChatFunc()

	opts := []Option{WithLogger(logger)}
	for _, closer := range closers {
		opts = append(opts, WithCloser(closer))
	}
	return New(config, vectorIndex, p, chat, opts...)
}

func openIndex(ctx context.Context, config model.IndexConfig, dimension int, logger *slog.Logger) (index.VectorIndex, error) {
	switch config.Backend {
	case model.IndexBackendPostgres:
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return nil, helper.NewError("postgres configuration", err)
		}
		db, err := helper.ConnectDatabase("docqa", dbConfig, logger)
		if err != nil {
			return nil, helper.NewError("connect postgres", err)
		}
		postgresIndex, err := database.NewPostgresIndex(db, dimension, false)
		if err != nil {
			_ = db.Close()
			return nil, helper.NewError("open postgres index", err)
		}
		return postgresIndex, nil
	case model.IndexBackendQdrant:
		qdrantIndex, err := index.NewQdrant(ctx, index.QdrantConfig{
			Host:       config.QdrantHost,
			Port:       config.QdrantPort,
			APIKey:     config.QdrantKey,
			Collection: config.Collection,
		}, dimension, logger)
		if err != nil {
			return nil, helper.NewError("open qdrant index", err)
		}
		return qdrantIndex, nil
	default:
		path := index.DefaultSQLitePath
		if config.Path != "" {
			path = filepath.Join(config.Path, "index.db")
		}
		sqliteIndex, err := index.NewSQLite(path, config.Collection, dimension, logger)
		if err != nil {
			return nil, helper.NewError("open sqlite index", err)
		}
		return sqliteIndex, nil
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Close closes the index and releases the local models.
func (d *DocQA) Close() error {
	var errs []error
	if err := d.index.Close(); err != nil {
		errs = append(errs, err)
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IndexDocument cleans, chunks, embeds and stores one document.
// Earlier chunks of the same RID are replaced.
// A document without text content is reported with status empty and no chunks.
func (d *DocQA) IndexDocument(ctx context.Context, doc *model.Document) (*model.IndexReport, error) {
	if doc == nil {
		return nil, helper.NewError("index document", fmt.Errorf("document is nil"))
	}
	if doc.RID == uuid.Nil {
		doc.RID = uuid.New()
	}

	report := &model.IndexReport{
		Status:      model.IndexStatusFailed,
		Document:    doc.Name(),
		DocumentRID: doc.RID,
	}

	chunks, err := d.pipeline.Process(ctx, doc)
	if err != nil {
		return report, helper.NewError("process document", err)
	}

	// Chunks of an earlier version of the document may outnumber the new ones.
	err = d.index.Remove(ctx, doc.RID)
	if err != nil {
		return report, helper.NewError("remove previous chunks", err)
	}

	if len(chunks) == 0 {
		report.Status = model.IndexStatusEmpty
		d.log.Warn("Document has no text content", slog.String("document", report.Document), slog.String("document_rid", doc.RID.String()))
	} else {
		err = d.index.Upsert(ctx, chunks)
		if err != nil {
			return report, helper.NewError("upsert chunks", err)
		}
		report.Status = model.IndexStatusSuccess
		report.Chunks = len(chunks)
	}

	stats, err := d.index.Stats(ctx)
	if err != nil {
		d.log.Warn("Failed to read index stats", slog.String("document_rid", doc.RID.String()), slog.String("error", err.Error()))
	} else {
		report.TotalDocuments = stats.Documents
	}

	d.log.Info(
		"Indexed document",
		slog.String("document", report.Document),
		slog.String("document_rid", doc.RID.String()),
		slog.Int("num_chunks", report.Chunks),
	)

	return report, nil
}

// IndexDocuments indexes documents concurrently. Results are in input order and
// a failing document never stops the others.
func (d *DocQA) IndexDocuments(ctx context.Context, docs []*model.Document) []model.IngestResult {
	results := make([]model.IngestResult, len(docs))

	limit := d.config.IngestConcurrency
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, doc := range docs {
		g.Go(func() error {
			report, err := d.IndexDocument(ctx, doc)
			results[i] = model.IngestResult{Document: doc, Report: report, Err: err}
			if err != nil {
				d.log.Error("Error indexing document", slog.Int("position", i), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Query answers a question from the indexed documents, restricted to documentRIDs when given.
// Entity extraction failures are logged and never fail the query.
func (d *DocQA) Query(ctx context.Context, question string, documentRIDs []uuid.UUID) (*model.QueryResponse, error) {
	config := d.config.Retrieval
	config.DocumentRIDs = documentRIDs

	evidence, err := d.engine.Retrieve(ctx, question, &config)
	if err != nil {
		return nil, err
	}

	response, err := d.synthesizer.Synthesize(ctx, question, evidence)
	if err != nil {
		return nil, err
	}

	response.Entities = []model.Entity{}
	if response.Degraded {
		return response, nil
	}

	entities, err := d.pipeline.ExtractEntities(ctx, response.Answer)
	if err != nil {
		d.log.Warn("Entity extraction failed", slog.String("error", fmt.Errorf("%w: %w", model.ErrExtractionFailed, err).Error()))
		return response, nil
	}
	if entities != nil {
		response.Entities = entities
	}

	return response, nil
}

// RemoveDocument deletes all chunks of a document from the index.
func (d *DocQA) RemoveDocument(ctx context.Context, documentRID uuid.UUID) error {
	err := d.index.Remove(ctx, documentRID)
	if err != nil {
		return helper.NewError("remove document", err)
	}
	d.log.Info("Removed document", slog.String("document_rid", documentRID.String()))
	return nil
}

// Stats reports the content of the index.
func (d *DocQA) Stats(ctx context.Context) (model.IndexStats, error) {
	return d.index.Stats(ctx)
}

// Reset removes every document from the index.
func (d *DocQA) Reset(ctx context.Context) error {
	err := d.index.Reset(ctx)
	if err != nil {
		return helper.NewError("reset index", err)
	}
	d.log.Info("Reset index")
	return nil
}
