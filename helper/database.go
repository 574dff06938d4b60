package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection settings of the Postgres index backend.
type DatabaseConfiguration struct {
	Host          string
	Port          string
	Database      string
	Username      string
	Password      string
	Schema        string
	SSLMode       string
	WithTableDrop bool
}

// NewDatabaseConfiguration reads the configuration from DOCQA_DB_* environment variables.
// Host, port, database, username and password are required.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	config := &DatabaseConfiguration{
		Host:          os.Getenv("DOCQA_DB_HOST"),
		Port:          os.Getenv("DOCQA_DB_PORT"),
		Database:      os.Getenv("DOCQA_DB_DATABASE"),
		Username:      os.Getenv("DOCQA_DB_USERNAME"),
		Password:      os.Getenv("DOCQA_DB_PASSWORD"),
		Schema:        os.Getenv("DOCQA_DB_SCHEMA"),
		SSLMode:       os.Getenv("DOCQA_DB_SSLMODE"),
		WithTableDrop: os.Getenv("DOCQA_DB_WITH_TABLE_DROP") == "true",
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" || config.Password == "" {
		return nil, NewError("database configuration", fmt.Errorf("DOCQA_DB_HOST, DOCQA_DB_PORT, DOCQA_DB_DATABASE, DOCQA_DB_USERNAME and DOCQA_DB_PASSWORD must be set"))
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// ConnectionString returns the lib/pq key/value connection string.
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// Database bundles a connection pool with the logger of its owner.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// ConnectDatabase opens and pings a Postgres connection pool.
// The ping is retried for a few seconds so freshly started servers can come up.
func ConnectDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration", fmt.Errorf("configuration is nil"))
	}

	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, NewError("open database", err)
	}
	instance.SetMaxOpenConns(10)
	instance.SetConnMaxIdleTime(5 * time.Minute)

	var pingErr error
	for attempt := 0; attempt < 10; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		pingErr = instance.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		_ = instance.Close()
		return nil, NewError("ping database", pingErr)
	}

	if config.WithTableDrop {
		_, err = instance.Exec(`DROP TABLE IF EXISTS chunks; DROP TABLE IF EXISTS documents;`)
		if err != nil {
			_ = instance.Close()
			return nil, NewError("drop tables", err)
		}
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host), slog.String("database", config.Database))

	return &Database{
		Name:     name,
		Instance: instance,
		Logger:   logger,
	}, nil
}

// NewDatabase connects like ConnectDatabase and panics when the database is unreachable.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := ConnectDatabase(name, config, logger)
	if err != nil {
		log.Panicf("error connecting to database %s: %v", name, err)
	}
	return db
}

// NewTestDatabase connects to the test database with a debug logger on stdout.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	return NewDatabase("test", config, NewLogger(os.Stdout, slog.LevelDebug))
}

// Close closes the connection pool.
func (d *Database) Close() error {
	if d == nil || d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}
