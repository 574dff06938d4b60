package helper

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "database"
	testUsername = "user"
	testPassword = "password"
)

// MustStartPostgresContainer starts a pgvector enabled Postgres container.
// It returns the teardown function and the mapped port on localhost.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUsername),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return pgContainer.Terminate, "", fmt.Errorf("error getting mapped port: %w", err)
	}

	return pgContainer.Terminate, port.Port(), nil
}

// MustStartQdrantContainer starts a Qdrant container and returns host and gRPC port.
func MustStartQdrantContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, int, error) {
	ctx := context.Background()

	qdrantContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:latest",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("error starting qdrant container: %w", err)
	}

	host, err := qdrantContainer.Host(ctx)
	if err != nil {
		return qdrantContainer.Terminate, "", 0, fmt.Errorf("error getting container host: %w", err)
	}

	mapped, err := qdrantContainer.MappedPort(ctx, "6334/tcp")
	if err != nil {
		return qdrantContainer.Terminate, "", 0, fmt.Errorf("error getting mapped port: %w", err)
	}

	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return qdrantContainer.Terminate, "", 0, fmt.Errorf("error parsing mapped port: %w", err)
	}

	return qdrantContainer.Terminate, host, port, nil
}

// SetTestDatabaseConfigEnvs points the DOCQA_DB_* variables at the test container.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("DOCQA_DB_HOST", "localhost")
	t.Setenv("DOCQA_DB_PORT", port)
	t.Setenv("DOCQA_DB_DATABASE", testDatabase)
	t.Setenv("DOCQA_DB_USERNAME", testUsername)
	t.Setenv("DOCQA_DB_PASSWORD", testPassword)
	t.Setenv("DOCQA_DB_SCHEMA", "public")
	t.Setenv("DOCQA_DB_SSLMODE", "disable")
}
