package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// TimestampLayout is the fixed-width UTC layout used for the timestamp
// column so that lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Schema contains the SQL statements to create the evidence database schema.
// The full entry is kept as canonical JSON in payload; the other columns
// exist for filtering and ordering.
const Schema = `
-- Evidence entries table
CREATE TABLE IF NOT EXISTS evidence (
    audit_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    id TEXT NOT NULL UNIQUE,

    capability TEXT NOT NULL,
    timestamp TEXT NOT NULL,

    compliant INTEGER NOT NULL,
    escalated INTEGER NOT NULL,
    rule_ids TEXT NOT NULL,
    fingerprint TEXT NOT NULL,

    payload TEXT NOT NULL,

    PRIMARY KEY (audit_id, sequence)
);

-- Append-only enforcement
CREATE TRIGGER IF NOT EXISTS evidence_no_update
BEFORE UPDATE ON evidence
BEGIN
    SELECT RAISE(ABORT, 'evidence is append-only');
END;

CREATE TRIGGER IF NOT EXISTS evidence_no_delete
BEFORE DELETE ON evidence
BEGIN
    SELECT RAISE(ABORT, 'evidence is append-only');
END;

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_evidence_timestamp ON evidence(timestamp);
CREATE INDEX IF NOT EXISTS idx_evidence_capability ON evidence(capability);
CREATE INDEX IF NOT EXISTS idx_evidence_compliant ON evidence(compliant);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
