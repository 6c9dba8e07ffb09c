/*
Package log provides structured logging for objstore using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

objstore's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("objtx")                   │          │
	│  │  - WithTable("widget")                      │          │
	│  │  - WithOID("17")                            │          │
	│  │  - WithTx(42)                                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "objtx",                    │          │
	│  │    "time": "2026-07-29T10:30:00Z",         │          │
	│  │    "message": "commit drained"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF commit drained component=objtx │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every objstore package
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name (objtx, objdb, boltkv, cli)
  - WithTable: Add the table name an operation concerns
  - WithOID: Add the object id an operation concerns
  - WithTx: Add the key-value transaction's snapshot number

# Usage

Initializing the Logger:

	import "github.com/cuemby/objstore/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("database opened")
	log.Debug("beginning writer transaction")
	log.Warn("identity map promoted to large mode")
	log.Error("failed to open database")
	log.Fatal("cannot start without a data file")

Component and Context Loggers:

	txLog := log.WithComponent("objtx").With().Uint64("tx", tx.TxNumber()).Logger()
	txLog.Debug().Msg("commit drain round started")

	tableLog := log.WithTable("widget")
	tableLog.Info().Msg("schema version persisted")

	oidLog := log.WithOID(id.String())
	oidLog.Warn().Msg("singleton type mismatch")

# Integration Points

Within this module the package is imported only by cmd/objstore, which
initializes it from the root command's flags and logs from the
database-open, apply and serve paths. The library packages pkg/objdb,
pkg/objtx and pkg/kv/boltkv do not log.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields (table, oid, tx)
  - Pass context loggers down instead of re-deriving fields
  - Avoids repetitive field specification

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log full object contents (may be large or sensitive)
  - Use Debug level in production
  - Log inside the commit drain loop's per-object hot path
  - Concatenate strings (use .Str, .Int, .Uint64)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
