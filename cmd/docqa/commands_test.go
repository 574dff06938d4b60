package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	indexed  []*model.Document
	question string
	rids     []uuid.UUID
	removed  uuid.UUID
	reset    bool
	closed   bool
	queryErr error
}

func (f *fakeService) IndexDocuments(ctx context.Context, docs []*model.Document) []model.IngestResult {
	f.indexed = docs
	results := make([]model.IngestResult, len(docs))
	for i, doc := range docs {
		results[i] = model.IngestResult{
			Document: doc,
			Report:   &model.IndexReport{Status: model.IndexStatusSuccess, Document: doc.Source, DocumentRID: doc.RID, Chunks: 1},
		}
	}
	return results
}

func (f *fakeService) Query(ctx context.Context, question string, documentRIDs []uuid.UUID) (*model.QueryResponse, error) {
	f.question = question
	f.rids = documentRIDs
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &model.QueryResponse{
		Answer:    "Paris.",
		Reasoning: "Passage [1].",
		Sources:   []model.SourceRef{{Evidence: 0, Source: "france.txt", Score: 0.9}},
	}, nil
}

func (f *fakeService) RemoveDocument(ctx context.Context, documentRID uuid.UUID) error {
	f.removed = documentRID
	return nil
}

func (f *fakeService) Stats(ctx context.Context) (model.IndexStats, error) {
	return model.IndexStats{Chunks: 7, Documents: 2, Dimension: 4}, nil
}

func (f *fakeService) Reset(ctx context.Context) error {
	f.reset = true
	return nil
}

func (f *fakeService) Close() error {
	f.closed = true
	return nil
}

func run(t *testing.T, svc *fakeService, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(ctx context.Context, config *model.Config) (service, error) {
		return svc, nil
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexCmd(t *testing.T) {
	t.Run("Indexes files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "france.txt")
		require.NoError(t, os.WriteFile(path, []byte("Paris is the capital of France."), 0o600))
		svc := &fakeService{}

		out, err := run(t, svc, "index", path)
		require.NoError(t, err)
		require.Len(t, svc.indexed, 1)
		assert.Equal(t, "france", svc.indexed[0].Title)
		assert.Contains(t, out, "success, 1 chunks")
		assert.True(t, svc.closed, "Expected the service to be closed")
	})

	t.Run("Missing file fails", func(t *testing.T) {
		_, err := run(t, &fakeService{}, "index", filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})

	t.Run("Needs at least one file", func(t *testing.T) {
		_, err := run(t, &fakeService{}, "index")
		assert.Error(t, err)
	})
}

func TestQueryCmd(t *testing.T) {
	t.Run("Prints answer and sources", func(t *testing.T) {
		svc := &fakeService{}

		out, err := run(t, svc, "query", "What is the capital of France?")
		require.NoError(t, err)
		assert.Equal(t, "What is the capital of France?", svc.question)
		assert.Empty(t, svc.rids)
		assert.Contains(t, out, "Paris.")
		assert.Contains(t, out, "[1] france.txt")
	})

	t.Run("Passes document filters", func(t *testing.T) {
		svc := &fakeService{}
		rid := uuid.New()

		_, err := run(t, svc, "query", "question", "--doc", rid.String())
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{rid}, svc.rids)
	})

	t.Run("Invalid document id fails", func(t *testing.T) {
		_, err := run(t, &fakeService{}, "query", "question", "--doc", "not-a-uuid")
		assert.Error(t, err)
	})

	t.Run("JSON output", func(t *testing.T) {
		out, err := run(t, &fakeService{}, "query", "question", "--json")
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "Paris.", decoded["answer"])
		assert.Equal(t, []interface{}{}, decoded["entities"])
	})

	t.Run("Query errors are returned", func(t *testing.T) {
		_, err := run(t, &fakeService{queryErr: model.ErrSynthesisFailed}, "query", "question")
		assert.True(t, errors.Is(err, model.ErrSynthesisFailed))
	})
}

func TestMaintenanceCmds(t *testing.T) {
	t.Run("Remove a document", func(t *testing.T) {
		svc := &fakeService{}
		rid := uuid.New()

		_, err := run(t, svc, "remove", rid.String())
		require.NoError(t, err)
		assert.Equal(t, rid, svc.removed)
	})

	t.Run("Remove a document by file path", func(t *testing.T) {
		svc := &fakeService{}

		_, err := run(t, svc, "remove", "notes/france.txt")
		require.NoError(t, err)
		assert.Equal(t, model.DocumentRIDForPath("notes/france.txt"), svc.removed)
	})

	t.Run("Show stats", func(t *testing.T) {
		out, err := run(t, &fakeService{}, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Documents: 2")
		assert.Contains(t, out, "Chunks: 7")
	})

	t.Run("Reset the index", func(t *testing.T) {
		svc := &fakeService{}

		_, err := run(t, svc, "reset")
		require.NoError(t, err)
		assert.True(t, svc.reset)
	})

	t.Run("Invalid config file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: redis\n"), 0o600))

		_, err := run(t, &fakeService{}, "stats", "--config", path)
		assert.Error(t, err)
	})
}
