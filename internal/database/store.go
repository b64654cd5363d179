package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Pipeline runs do their reads and writes through a RunTx so that
// duplicate checks observe the current run's pending inserts and a single
// commit finalizes the whole run.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// Begin opens a transaction for a collection or clustering run.
	Begin(ctx context.Context) (RunTx, error)
}

// RunTx is a single pipeline run's unit of work. Inserts are visible to
// subsequent reads on the same RunTx before Commit; Rollback after a
// successful Commit is a no-op.
type RunTx interface {
	// FindPain looks up a pain by its dedup key. Returns nil, nil if absent.
	FindPain(ctx context.Context, userID int64, sourceChat string, sourceMessageID int64, quote string) (*Pain, error)

	// InsertPain adds a new pain row and fills in its generated ID.
	InsertPain(ctx context.Context, pain *Pain) error

	// UnclusteredPains returns all pains of a program with no cluster assigned.
	UnclusteredPains(ctx context.Context, programID int64) ([]Pain, error)

	// ClustersForProgram returns all clusters of a program.
	ClustersForProgram(ctx context.Context, programID int64) ([]PainCluster, error)

	// GetCluster retrieves one cluster by ID. Returns nil, nil if absent.
	GetCluster(ctx context.Context, id int64) (*PainCluster, error)

	// PainsInCluster returns all pains currently assigned to a cluster.
	PainsInCluster(ctx context.Context, clusterID int64) ([]Pain, error)

	// InsertCluster adds a new cluster row and fills in its generated ID,
	// so later assignments in the same run can reference it.
	InsertCluster(ctx context.Context, cluster *PainCluster) error

	// AssignPainToCluster sets a pain's cluster ID.
	AssignPainToCluster(ctx context.Context, painID, clusterID int64) error

	// UpdateClusterStats writes a cluster's recomputed aggregate statistics.
	UpdateClusterStats(ctx context.Context, cluster *PainCluster) error

	// Commit finalizes the run.
	Commit() error

	// Rollback discards the run; safe to defer after Commit.
	Rollback() error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// Begin opens a transaction for a collection or clustering run.
func (s *sqlxStore) Begin(ctx context.Context) (RunTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin run transaction", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &runTx{tx: tx, logger: s.logger}, nil
}

type runTx struct {
	tx     *sqlx.Tx
	logger *slog.Logger
}

// FindPain looks up a pain by its dedup key inside the run transaction,
// so pending inserts from earlier batches of the same run are visible.
func (t *runTx) FindPain(ctx context.Context, userID int64, sourceChat string, sourceMessageID int64, quote string) (*Pain, error) {
	var pain Pain
	query := `
        SELECT id, created_at, user_id, program_id, text, original_quote, category, intensity,
               source_chat, source_message_id, business_type, message_date, cluster_id
        FROM pains
        WHERE user_id = ? AND source_chat = ? AND source_message_id = ? AND original_quote = ?
        LIMIT 1;
    `

	err := t.tx.GetContext(ctx, &pain, query, userID, sourceChat, sourceMessageID, quote)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case err != nil:
		t.logger.ErrorContext(ctx, "Error looking up pain by dedup key",
			"user_id", userID, "source_chat", sourceChat, "source_message_id", sourceMessageID, "error", err)
		return nil, fmt.Errorf("failed to look up pain: %w", err)
	}

	return &pain, nil
}

// InsertPain adds a new pain row and fills in its generated ID.
func (t *runTx) InsertPain(ctx context.Context, pain *Pain) error {
	if pain == nil {
		return fmt.Errorf("cannot insert nil pain")
	}
	if pain.UserID == 0 {
		return fmt.Errorf("pain must have a non-zero user_id")
	}
	if pain.SourceChat == "" {
		return fmt.Errorf("pain must have a non-empty source_chat")
	}

	pain.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO pains (user_id, program_id, text, original_quote, category, intensity,
                           source_chat, source_message_id, business_type, message_date, cluster_id, created_at)
        VALUES (:user_id, :program_id, :text, :original_quote, :category, :intensity,
                :source_chat, :source_message_id, :business_type, :message_date, :cluster_id, :created_at);
    `

	result, err := t.tx.NamedExecContext(ctx, query, pain)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error inserting pain",
			"user_id", pain.UserID, "source_chat", pain.SourceChat, "error", err)
		return fmt.Errorf("failed to insert pain (chat %s, message %d): %w", pain.SourceChat, pain.SourceMessageID, err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		pain.ID = id
	} else {
		t.logger.WarnContext(ctx, "Could not retrieve last insert ID after inserting pain",
			"source_chat", pain.SourceChat, "error", err)
	}

	t.logger.DebugContext(ctx, "Pain inserted",
		"pain_id", pain.ID, "source_chat", pain.SourceChat, "source_message_id", pain.SourceMessageID)
	return nil
}

// UnclusteredPains returns all pains of a program with no cluster assigned.
func (t *runTx) UnclusteredPains(ctx context.Context, programID int64) ([]Pain, error) {
	var pains []Pain
	query := `
        SELECT id, created_at, user_id, program_id, text, original_quote, category, intensity,
               source_chat, source_message_id, business_type, message_date, cluster_id
        FROM pains
        WHERE program_id = ? AND cluster_id IS NULL
        ORDER BY id ASC;
    `

	if err := t.tx.SelectContext(ctx, &pains, query, programID); err != nil {
		t.logger.ErrorContext(ctx, "Error getting unclustered pains", "program_id", programID, "error", err)
		return nil, fmt.Errorf("failed to get unclustered pains for program %d: %w", programID, err)
	}
	return pains, nil
}

// ClustersForProgram returns all clusters of a program.
func (t *runTx) ClustersForProgram(ctx context.Context, programID int64) ([]PainCluster, error) {
	var clusters []PainCluster
	query := `
        SELECT id, created_at, updated_at, user_id, program_id, name, category, description,
               pain_count, avg_intensity, first_seen, last_seen, trend
        FROM pain_clusters
        WHERE program_id = ?
        ORDER BY id ASC;
    `

	if err := t.tx.SelectContext(ctx, &clusters, query, programID); err != nil {
		t.logger.ErrorContext(ctx, "Error getting clusters", "program_id", programID, "error", err)
		return nil, fmt.Errorf("failed to get clusters for program %d: %w", programID, err)
	}
	return clusters, nil
}

// GetCluster retrieves one cluster by ID. Returns nil, nil if absent.
func (t *runTx) GetCluster(ctx context.Context, id int64) (*PainCluster, error) {
	var cluster PainCluster
	query := `
        SELECT id, created_at, updated_at, user_id, program_id, name, category, description,
               pain_count, avg_intensity, first_seen, last_seen, trend
        FROM pain_clusters
        WHERE id = ?;
    `

	err := t.tx.GetContext(ctx, &cluster, query, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case err != nil:
		t.logger.ErrorContext(ctx, "Error getting cluster by ID", "cluster_id", id, "error", err)
		return nil, fmt.Errorf("failed to get cluster %d: %w", id, err)
	}

	return &cluster, nil
}

// PainsInCluster returns all pains currently assigned to a cluster.
func (t *runTx) PainsInCluster(ctx context.Context, clusterID int64) ([]Pain, error) {
	var pains []Pain
	query := `
        SELECT id, created_at, user_id, program_id, text, original_quote, category, intensity,
               source_chat, source_message_id, business_type, message_date, cluster_id
        FROM pains
        WHERE cluster_id = ?
        ORDER BY id ASC;
    `

	if err := t.tx.SelectContext(ctx, &pains, query, clusterID); err != nil {
		t.logger.ErrorContext(ctx, "Error getting pains in cluster", "cluster_id", clusterID, "error", err)
		return nil, fmt.Errorf("failed to get pains for cluster %d: %w", clusterID, err)
	}
	return pains, nil
}

// InsertCluster adds a new cluster row and fills in its generated ID.
func (t *runTx) InsertCluster(ctx context.Context, cluster *PainCluster) error {
	if cluster == nil {
		return fmt.Errorf("cannot insert nil cluster")
	}
	if cluster.Name == "" {
		return fmt.Errorf("cluster must have a non-empty name")
	}

	now := time.Now().UTC()
	cluster.CreatedAt = now
	cluster.UpdatedAt = now
	if cluster.Trend == "" {
		cluster.Trend = "stable"
	}

	query := `
        INSERT INTO pain_clusters (user_id, program_id, name, category, description,
                                   pain_count, avg_intensity, first_seen, last_seen, trend, created_at, updated_at)
        VALUES (:user_id, :program_id, :name, :category, :description,
                :pain_count, :avg_intensity, :first_seen, :last_seen, :trend, :created_at, :updated_at);
    `

	result, err := t.tx.NamedExecContext(ctx, query, cluster)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error inserting cluster", "name", cluster.Name, "error", err)
		return fmt.Errorf("failed to insert cluster %q: %w", cluster.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		// Later assignments in this run reference the new cluster by ID,
		// so failing to learn it is a real error here.
		t.logger.ErrorContext(ctx, "Could not retrieve last insert ID after inserting cluster",
			"name", cluster.Name, "error", err)
		return fmt.Errorf("failed to get generated ID for cluster %q: %w", cluster.Name, err)
	}
	cluster.ID = id

	t.logger.DebugContext(ctx, "Cluster created", "cluster_id", cluster.ID, "name", cluster.Name)
	return nil
}

// AssignPainToCluster sets a pain's cluster ID.
func (t *runTx) AssignPainToCluster(ctx context.Context, painID, clusterID int64) error {
	query := `UPDATE pains SET cluster_id = ? WHERE id = ?;`

	result, err := t.tx.ExecContext(ctx, query, clusterID, painID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error assigning pain to cluster",
			"pain_id", painID, "cluster_id", clusterID, "error", err)
		return fmt.Errorf("failed to assign pain %d to cluster %d: %w", painID, clusterID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected != 1 {
		t.logger.WarnContext(ctx, "Unexpected number of rows affected when assigning pain",
			"pain_id", painID, "cluster_id", clusterID, "affected", affected)
	}
	return nil
}

// UpdateClusterStats writes a cluster's recomputed aggregate statistics.
func (t *runTx) UpdateClusterStats(ctx context.Context, cluster *PainCluster) error {
	if cluster == nil {
		return fmt.Errorf("cannot update nil cluster")
	}

	cluster.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE pain_clusters SET
            pain_count = :pain_count,
            avg_intensity = :avg_intensity,
            first_seen = :first_seen,
            last_seen = :last_seen,
            trend = :trend,
            updated_at = :updated_at
        WHERE id = :id;
    `

	result, err := t.tx.NamedExecContext(ctx, query, cluster)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error updating cluster statistics", "cluster_id", cluster.ID, "error", err)
		return fmt.Errorf("failed to update statistics for cluster %d: %w", cluster.ID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected != 1 {
		t.logger.WarnContext(ctx, "Unexpected number of rows affected when updating cluster stats",
			"cluster_id", cluster.ID, "affected", affected)
	}
	return nil
}

// Commit finalizes the run.
func (t *runTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the run; safe to defer after Commit.
func (t *runTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
