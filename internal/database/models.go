package database

import (
	"database/sql"
	"time"
)

// Pain represents a single extracted problem statement from a chat message.
// Rows are deduplicated at the application layer on the
// (user_id, source_chat, source_message_id, original_quote) key.
type Pain struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	UserID          int64          `db:"user_id"`
	ProgramID       int64          `db:"program_id"`
	Text            string         `db:"text"`
	OriginalQuote   string         `db:"original_quote"`
	Category        string         `db:"category"`
	Intensity       string         `db:"intensity"`
	SourceChat      string         `db:"source_chat"`
	SourceMessageID int64          `db:"source_message_id"`
	BusinessType    sql.NullString `db:"business_type"`
	MessageDate     sql.NullTime   `db:"message_date"`
	ClusterID       sql.NullInt64  `db:"cluster_id"`
}

// PainCluster groups semantically related pains and carries running
// aggregate statistics. Clusters are created and mutated by the clusterer;
// nothing in this codebase deletes them.
type PainCluster struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID       int64        `db:"user_id"`
	ProgramID    int64        `db:"program_id"`
	Name         string       `db:"name"`
	Category     string       `db:"category"`
	Description  string       `db:"description"`
	PainCount    int          `db:"pain_count"`
	AvgIntensity float64      `db:"avg_intensity"`
	FirstSeen    sql.NullTime `db:"first_seen"`
	LastSeen     sql.NullTime `db:"last_seen"`
	Trend        string       `db:"trend"`
}
