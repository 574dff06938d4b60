package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	"github.com/spf13/cobra"
)

// service is the part of docqa.DocQA the commands use.
type service interface {
	IndexDocuments(ctx context.Context, docs []*model.Document) []model.IngestResult
	Query(ctx context.Context, question string, documentRIDs []uuid.UUID) (*model.QueryResponse, error)
	RemoveDocument(ctx context.Context, documentRID uuid.UUID) error
	Stats(ctx context.Context) (model.IndexStats, error)
	Reset(ctx context.Context) error
	Close() error
}

// serviceRunner wraps a command body so it runs with an open service.
type serviceRunner func(run func(cmd *cobra.Command, args []string, svc service) error) func(cmd *cobra.Command, args []string) error

type openFunc func(ctx context.Context, config *model.Config) (service, error)

func openService(ctx context.Context, config *model.Config) (service, error) {
	d, err := docqa.NewFromConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// loadConfig reads defaults, the optional YAML file and the environment.
func loadConfig(path string) (*model.Config, error) {
	config := model.DefaultConfig()
	if err := helper.LoadConfig(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func newRootCmd(open openFunc) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your documents",
		Long: `docqa indexes text documents as vector embeddings and answers
questions about them with a reasoning model, citing the passages it used.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// withService loads the configuration and opens the service for one command run.
	var withService serviceRunner = func(run func(cmd *cobra.Command, args []string, svc service) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			svc, err := open(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer svc.Close()
			return run(cmd, args, svc)
		}
	}

	rootCmd.AddCommand(
		newIndexCmd(withService),
		newQueryCmd(withService),
		newRemoveCmd(withService),
		newStatsCmd(withService),
		newResetCmd(withService),
	)

	return rootCmd
}
