package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

// Supported database/sql driver names.
const (
	// DriverModernc is the pure-Go driver (modernc.org/sqlite).
	DriverModernc = "sqlite"

	// DriverMattn is the cgo driver (github.com/mattn/go-sqlite3).
	DriverMattn = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/evidence.db",
		Driver:       DriverModernc,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the Storage interface using SQLite.
// UPDATE and DELETE on the evidence table are rejected by triggers.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// sortColumns maps query sort keys to ORDER BY clauses.
var sortColumns = map[string]string{
	"":           "timestamp %s, sequence %s",
	"timestamp":  "timestamp %s, sequence %s",
	"sequence":   "audit_id %s, sequence %s",
	"capability": "capability %s, timestamp %s",
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, evidence.NewStorageError("sqlite", "open",
			fmt.Errorf("unsupported driver %q (want %q or %q)", config.Driver, DriverModernc, DriverMattn))
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store appends an evidence entry to the database.
func (s *SQLiteStorage) Store(ctx context.Context, e *evidence.Evidence) error {
	if e == nil {
		return evidence.NewStorageError("sqlite", "store", errors.New("evidence is nil"))
	}

	payload, err := evidence.Canonical(e)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence (
			audit_id, sequence, id,
			capability, timestamp,
			compliant, escalated, rule_ids, fingerprint,
			payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.AuditID, int64(e.Sequence), e.ID,
		e.Capability, e.Timestamp.UTC().Format(TimestampLayout),
		boolToInt(e.Result.Compliant), boolToInt(e.Escalated()), ruleIDs(e), e.MetadataFingerprint,
		string(payload),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			err = fmt.Errorf("%w: audit_id=%s sequence=%d: %v", evidence.ErrDuplicateEvidence, e.AuditID, e.Sequence, err)
		}
		return evidence.NewStorageError("sqlite", "store", err)
	}

	return nil
}

// Query retrieves evidence entries matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Evidence, error) {
	if query == nil {
		query = &evidence.Query{}
	}

	whereClause, args := s.buildWhereClause(query)

	sqlQuery := "SELECT payload FROM evidence"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	order, ok := sortColumns[query.SortBy]
	if !ok {
		return nil, evidence.NewQueryError(query, fmt.Errorf("invalid sort_by %q", query.SortBy))
	}
	direction := "ASC"
	if strings.EqualFold(query.SortOrder, "desc") {
		direction = "DESC"
	}
	sqlQuery += " ORDER BY " + fmt.Sprintf(order, direction, direction)

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	} else if query.Offset > 0 {
		sqlQuery += " LIMIT -1"
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*evidence.Evidence{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		var e evidence.Evidence
		if err := evidence.Decode([]byte(payload), &e); err != nil {
			return nil, evidence.NewStorageError("sqlite", "decode", err)
		}
		records = append(records, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// Count returns the number of entries matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}

	whereClause, args := s.buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM evidence"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) buildWhereClause(query *evidence.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UTC().Format(TimestampLayout))
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UTC().Format(TimestampLayout))
	}

	if query.AuditID != "" {
		conditions = append(conditions, "audit_id = ?")
		args = append(args, query.AuditID)
	}
	if query.Capability != "" {
		conditions = append(conditions, "capability = ?")
		args = append(args, query.Capability)
	}
	if query.RuleID != "" {
		conditions = append(conditions, "instr(rule_ids, ?) > 0")
		args = append(args, ","+query.RuleID+",")
	}
	if query.Compliant != nil {
		conditions = append(conditions, "compliant = ?")
		args = append(args, boolToInt(*query.Compliant))
	}
	if query.Escalated != nil {
		conditions = append(conditions, "escalated = ?")
		args = append(args, boolToInt(*query.Escalated))
	}

	return strings.Join(conditions, " AND "), args
}

// ruleIDs renders matched rule ids as ",a,b," so a single id can be matched
// without partial hits.
func ruleIDs(e *evidence.Evidence) string {
	var sb strings.Builder
	sb.WriteString(",")
	for _, v := range e.Result.Violations {
		sb.WriteString(v.RuleID)
		sb.WriteString(",")
	}
	for _, w := range e.Result.Warnings {
		sb.WriteString(w.RuleID)
		sb.WriteString(",")
	}
	return sb.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
