package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/docqa"
	"github.com/siherrmann/docqa/core/llm"
	"github.com/siherrmann/docqa/core/pipeline"
	"github.com/siherrmann/docqa/database"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

const reportContent = `The quarterly report covers revenue, costs and hiring.

Revenue grew by twelve percent compared to the previous quarter, driven by the new storage product.
Costs stayed flat. The team hired four engineers in Munich and two in Lisbon.`

const roadmapContent = `The roadmap for next year focuses on the storage product.

A second data center in Lisbon opens in spring. The Munich office moves to a larger building.`

// Starts a pgvector container, indexes two documents with the local embedder and
// answers a question with the chat model configured in the environment.
func main() {
	ctx := context.Background()
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)

	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}
	db, err := helper.ConnectDatabase("docqa", dbConfig, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	postgresIndex, err := database.NewPostgresIndex(db, pipeline.LocalEmbeddingDimension, false)
	if err != nil {
		log.Fatalf("Failed to create index: %v", err)
	}
	if err := postgresIndex.Chunks().ChangeIndexType(ctx, database.IndexTypeHNSW, database.IndexParams{M: 32}); err != nil {
		log.Fatalf("Failed to change index type: %v", err)
	}

	embed, closeEmbedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	config := model.DefaultConfig()
	config.ApplyEnv()
	chat := llm.NewClient(config.Chat, logger, nil).ChatFunc()
	p := pipeline.NewPipeline(pipeline.RecursiveChunker(300, 30, 60), embed)

	d, err := docqa.New(config, postgresIndex, p, chat, docqa.WithLogger(logger), docqa.WithCloser(closeEmbedder))
	if err != nil {
		log.Fatalf("Failed to create docqa: %v", err)
	}
	defer d.Close()

	report := model.NewDocument("report.txt", reportContent, model.QualityClean)
	report.Metadata["quarter"] = "Q3"
	roadmap := model.NewDocument("roadmap.txt", roadmapContent, model.QualityClean)

	for _, doc := range []*model.Document{report, roadmap} {
		indexReport, err := d.IndexDocument(ctx, doc)
		if err != nil {
			log.Fatalf("Failed to index %s: %v", doc.Source, err)
		}
		// Indexing registers the document by source only, add title and metadata.
		if err := postgresIndex.Documents().UpsertDocument(ctx, doc); err != nil {
			log.Fatalf("Failed to register document: %v", err)
		}
		fmt.Printf("Indexed %s: %d chunks, %d documents in total\n", indexReport.Document, indexReport.Chunks, indexReport.TotalDocuments)
	}

	stored, err := postgresIndex.Documents().SelectDocument(ctx, report.RID)
	if err != nil {
		log.Fatalf("Failed to load document: %v", err)
	}
	chunks, err := postgresIndex.Chunks().SelectChunksByDocument(ctx, report.RID)
	if err != nil {
		log.Fatalf("Failed to load chunks: %v", err)
	}
	fmt.Printf("\n%s (%s) has %d chunks:\n", stored.Title, stored.Metadata["quarter"], len(chunks))
	for _, chunk := range chunks {
		fmt.Printf("  #%d [%d:%d] %.40q\n", chunk.ChunkIndex, chunk.StartPos, chunk.EndPos, chunk.Content)
	}

	response, err := d.Query(ctx, "Where does the company hire and build?", nil)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	fmt.Printf("\nAnswer: %s\nReasoning: %s\n", response.Answer, response.Reasoning)
	for _, source := range response.Sources {
		fmt.Printf("  [%d] %s (%.2f)\n", source.Evidence+1, source.Source, source.Score)
	}

	documents, err := postgresIndex.Documents().SelectAllDocuments(ctx, nil, 10)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}
	fmt.Println("\nDocuments:")
	for _, doc := range documents {
		fmt.Printf("  %s %s %v\n", doc.RID, doc.Title, doc.Metadata)
	}
}
