package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsNewDocumentsDBHandler(t *testing.T) {
	database := initDB(t)
	defer database.Close()

	t.Run("Valid call NewDocumentsDBHandler", func(t *testing.T) {
		documentsDbHandler, err := NewDocumentsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")
		require.NotNil(t, documentsDbHandler, "Expected NewDocumentsDBHandler to return a non-nil instance")
		require.NotNil(t, documentsDbHandler.db.Instance, "Expected NewDocumentsDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewDocumentsDBHandler with nil database", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating DocumentsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestDocumentsUpsert(t *testing.T) {
	database := initDB(t)
	defer database.Close()
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	t.Run("Insert document", func(t *testing.T) {
		doc := &model.Document{
			Title:    "Test Document",
			Source:   "test_source.txt",
			Metadata: model.Metadata{"author": "Test Author"},
		}

		err := documentsDbHandler.UpsertDocument(ctx, doc)
		require.NoError(t, err, "Expected upsert to not return an error")
		assert.NotEqual(t, uuid.Nil, doc.RID, "Expected inserted document to have a RID")
		assert.NotZero(t, doc.ID, "Expected inserted document to have an ID")
		assert.Equal(t, model.QualityClean, doc.Quality, "Expected quality to default to clean")
		assert.WithinDuration(t, time.Now(), doc.CreatedAt, 5*time.Second, "Expected CreatedAt to be set")
		assert.Equal(t, "Test Author", doc.Metadata["author"], "Expected metadata to round trip")
	})

	t.Run("Upsert with same RID updates", func(t *testing.T) {
		doc := model.NewDocument("report.pdf", "", model.QualityDegraded)
		require.NoError(t, documentsDbHandler.UpsertDocument(ctx, doc))
		firstID := doc.ID

		doc.Title = "Quarterly report"
		require.NoError(t, documentsDbHandler.UpsertDocument(ctx, doc))

		assert.Equal(t, firstID, doc.ID, "Expected the row to be updated in place")
		selected, err := documentsDbHandler.SelectDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Equal(t, "Quarterly report", selected.Title)
		assert.Equal(t, model.QualityDegraded, selected.Quality)
	})
}

func TestDocumentsSelectAndDelete(t *testing.T) {
	database := initDB(t)
	defer database.Close()
	ctx := context.Background()

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	var rids []uuid.UUID
	for _, source := range []string{"a.txt", "b.txt", "c.txt"} {
		doc := model.NewDocument(source, "", model.QualityClean)
		require.NoError(t, documentsDbHandler.UpsertDocument(ctx, doc))
		rids = append(rids, doc.RID)
	}

	t.Run("Select all documents in creation order", func(t *testing.T) {
		documents, err := documentsDbHandler.SelectAllDocuments(ctx, nil, 10)
		require.NoError(t, err)
		require.Len(t, documents, 3)
		assert.Equal(t, "a.txt", documents[0].Source)
		assert.Equal(t, "c.txt", documents[2].Source)
	})

	t.Run("Select all documents respects limit", func(t *testing.T) {
		documents, err := documentsDbHandler.SelectAllDocuments(ctx, nil, 2)
		require.NoError(t, err)
		assert.Len(t, documents, 2)
	})

	t.Run("Select unknown document fails", func(t *testing.T) {
		_, err := documentsDbHandler.SelectDocument(ctx, uuid.New())
		assert.Error(t, err)
	})

	t.Run("Delete document", func(t *testing.T) {
		require.NoError(t, documentsDbHandler.DeleteDocument(ctx, rids[0]))

		_, err := documentsDbHandler.SelectDocument(ctx, rids[0])
		assert.Error(t, err, "Expected deleted document to be gone")
	})

	t.Run("Delete all documents", func(t *testing.T) {
		require.NoError(t, documentsDbHandler.DeleteAllDocuments(ctx))

		documents, err := documentsDbHandler.SelectAllDocuments(ctx, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, documents)
	})
}
