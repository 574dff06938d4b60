package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/docqa"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

const franceContent = `France is a country in Western Europe.

Its capital and largest city is Paris, which lies on the river Seine.
Paris has been the seat of the French government for most of the country's history.`

const germanyContent = `Germany is a country in Central Europe.

Berlin is its capital. The city was divided between 1961 and 1989.`

// Run with AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_DEPLOYMENT_NAME set.
// Embeddings are computed locally, the index is a SQLite file in ./docqa_db.
func main() {
	ctx := context.Background()

	config := model.DefaultConfig()
	config.Embedding.Local = true
	if err := helper.LoadConfig("", config); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	d, err := docqa.NewFromConfig(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create docqa: %v", err)
	}
	defer d.Close()

	docs := []*model.Document{
		model.NewDocument("france.txt", franceContent, model.QualityClean),
		model.NewDocument("germany.txt", germanyContent, model.QualityClean),
	}

	fmt.Println("Indexing documents...")
	for _, result := range d.IndexDocuments(ctx, docs) {
		if result.Err != nil {
			log.Fatalf("Failed to index %s: %v", result.Document.Source, result.Err)
		}
		fmt.Printf("  %s: %d chunks\n", result.Report.Document, result.Report.Chunks)
	}

	question := "What is the capital of France?"
	fmt.Printf("\nQuerying: %s\n", question)

	response, err := d.Query(ctx, question, nil)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		log.Fatalf("Failed to encode response: %v", err)
	}
}
