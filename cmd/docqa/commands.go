package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/model"
	"github.com/spf13/cobra"
)

func newIndexCmd(withService serviceRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "index [file]...",
		Short: "Index text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string, svc service) error {
			docs := make([]*model.Document, 0, len(args))
			for _, path := range args {
				doc, err := model.NewDocumentFromFile(path, model.Metadata{})
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				docs = append(docs, doc)
			}

			failed := 0
			for _, result := range svc.IndexDocuments(cmd.Context(), docs) {
				if result.Err != nil {
					failed++
					cmd.PrintErrf("  %s: %v\n", result.Document.Source, result.Err)
					continue
				}
				cmd.Printf("  %s: %s, %d chunks (%s)\n", result.Report.Document, result.Report.Status, result.Report.Chunks, result.Report.DocumentRID)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docs))
			}
			return nil
		}),
	}
}

func newQueryCmd(withService serviceRunner) *cobra.Command {
	var documents []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string, svc service) error {
			rids := make([]uuid.UUID, 0, len(documents))
			for _, document := range documents {
				rid, err := uuid.Parse(document)
				if err != nil {
					return fmt.Errorf("invalid document id %q: %w", document, err)
				}
				rids = append(rids, rid)
			}

			response, err := svc.Query(cmd.Context(), args[0], rids)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(response, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal response: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			cmd.Println(response.Answer)
			cmd.Println()
			cmd.Printf("Reasoning: %s\n", response.Reasoning)
			if len(response.Sources) > 0 {
				cmd.Println("Sources:")
				for _, source := range response.Sources {
					cmd.Printf("  [%d] %s #%d (%.2f)\n", source.Evidence+1, source.Source, source.ChunkIndex, source.Score)
				}
			}
			if len(response.Entities) > 0 {
				cmd.Println("Entities:")
				for _, entity := range response.Entities {
					cmd.Printf("  %s (%s)\n", entity.Text, entity.Type)
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringArrayVarP(&documents, "doc", "d", nil, "restrict the search to a document id (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the response as JSON")

	return cmd
}

func newRemoveCmd(withService serviceRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [document-id | file]",
		Short: "Remove a document from the index",
		Long:  "Remove a document by its id or by the path it was indexed from.",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, args []string, svc service) error {
			rid, err := uuid.Parse(args[0])
			if err != nil {
				rid = model.DocumentRIDForPath(args[0])
			}
			if err := svc.RemoveDocument(cmd.Context(), rid); err != nil {
				return err
			}
			cmd.Printf("Removed %s\n", rid)
			return nil
		}),
	}
}

func newStatsCmd(withService serviceRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: withService(func(cmd *cobra.Command, args []string, svc service) error {
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Documents: %d\nChunks: %d\nDimension: %d\n", stats.Documents, stats.Chunks, stats.Dimension)
			return nil
		}),
	}
}

func newResetCmd(withService serviceRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove all documents from the index",
		Args:  cobra.NoArgs,
		RunE: withService(func(cmd *cobra.Command, args []string, svc service) error {
			if err := svc.Reset(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Index reset")
			return nil
		}),
	}
}
