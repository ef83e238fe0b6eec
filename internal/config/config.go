// Package config parses the blockdoc command line. Every flag falls back to a
// BLOCKDOC_* environment variable, then to a built-in default.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Commands.
const (
	CommandServe      = "serve"
	CommandMCP        = "mcp"
	CommandCheckpoint = "checkpoint"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongo    = "mongo"
)

type Config struct {
	DataDir string
	// Driver selects the snapshot store. sqlite, postgres and mysql also keep
	// a change log; mongo stores snapshots only.
	Driver   string
	DSN      string
	MongoURI string
	MongoDB  string

	// PolicyFile is an optional YAML file of block policy overrides. It is
	// watched and reloaded on change.
	PolicyFile string
	// Checkpoint is the cron spec of the periodic checkpoint; empty disables it.
	Checkpoint string
	UndoLimit  int

	Listen   string
	LogLevel string
	LogFile  string
}

const usage = `Usage: blockdoc [flags] <command>

Commands:
  serve        Serve the HTTP API and websocket replication feed
  mcp          Serve the MCP editing tools on stdin/stdout
  checkpoint   Snapshot every stored document and compact its change log

Examples:
  blockdoc serve
  blockdoc -listen :9090 -checkpoint "@every 1m" serve
  blockdoc -driver postgres -dsn "postgres://blockdoc@localhost/blockdoc?sslmode=disable" serve
  blockdoc -driver mongo -mongo-uri mongodb://localhost:27017 mcp`

// Parse parses command line arguments and returns the command to execute
// and the configuration shared by all commands.
func Parse(args []string) (string, *Config, error) {
	flagSet := flag.NewFlagSet("blockdoc", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	homeDir, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(homeDir, ".local", "share", "blockdoc")

	var (
		dataDir    = flagSet.String("data-dir", getEnv("BLOCKDOC_DATA_DIR", defaultDataDir), "Directory for the SQLite database and log files")
		driver     = flagSet.String("driver", getEnv("BLOCKDOC_DRIVER", DriverSQLite), "Storage driver: sqlite, postgres, mysql, mongo")
		dsn        = flagSet.String("dsn", getEnv("BLOCKDOC_DSN", ""), "SQL data source name (postgres, mysql)")
		mongoURI   = flagSet.String("mongo-uri", getEnv("BLOCKDOC_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
		mongoDB    = flagSet.String("mongo-db", getEnv("BLOCKDOC_MONGO_DB", "blockdoc"), "MongoDB database name")
		policy     = flagSet.String("policy", getEnv("BLOCKDOC_POLICY", ""), "YAML file of block policy overrides")
		checkpoint = flagSet.String("checkpoint", getEnv("BLOCKDOC_CHECKPOINT", "@every 5m"), "Cron spec for periodic checkpoints (empty disables)")
		undoLimit  = flagSet.Int("undo-limit", getEnvInt("BLOCKDOC_UNDO_LIMIT", 100), "Undo entries kept per document")
		listen     = flagSet.String("listen", getEnv("BLOCKDOC_LISTEN", ":8080"), "HTTP listen address for serve")
		logLevel   = flagSet.String("log-level", getEnv("BLOCKDOC_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
		logFile    = flagSet.String("log-file", getEnv("BLOCKDOC_LOG_FILE", ""), "Append logs to this file instead of stderr")
	)

	if err := flagSet.Parse(args); err != nil {
		return "", nil, fmt.Errorf("%w\n\n%s", err, usage)
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) == 0 {
		return "", nil, fmt.Errorf("subcommand required\n\n%s", usage)
	}

	cmd := remainingArgs[0]
	switch cmd {
	case CommandServe, CommandMCP, CommandCheckpoint:
	default:
		return "", nil, fmt.Errorf("unknown command: %s\n\nValid commands: serve, mcp, checkpoint", cmd)
	}

	cfg := &Config{
		DataDir:    *dataDir,
		Driver:     strings.ToLower(*driver),
		DSN:        *dsn,
		MongoURI:   *mongoURI,
		MongoDB:    *mongoDB,
		PolicyFile: *policy,
		Checkpoint: *checkpoint,
		UndoLimit:  *undoLimit,
		Listen:     *listen,
		LogLevel:   *logLevel,
		LogFile:    *logFile,
	}
	if err := cfg.validate(); err != nil {
		return "", nil, err
	}
	return cmd, cfg, nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverSQLite, DriverMongo:
	case DriverPostgres, DriverMySQL:
		if c.DSN == "" {
			return fmt.Errorf("driver %s requires -dsn", c.Driver)
		}
	default:
		return fmt.Errorf("invalid driver: %s (must be sqlite, postgres, mysql or mongo)", c.Driver)
	}
	if c.UndoLimit < 0 {
		return fmt.Errorf("invalid undo limit: %d", c.UndoLimit)
	}
	return nil
}

// SQLitePath is where the default store lives.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "blockdoc.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
