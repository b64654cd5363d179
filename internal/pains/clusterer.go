package pains

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/database"
	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/prompts"
)

// ErrUnparseableAssignments signals that the clustering response was not
// the expected JSON object.
var ErrUnparseableAssignments = errors.New("clustering response is not parseable JSON")

// assignment is one element of the model's clustering response.
// cluster_id is either an existing numeric id or the literal "new".
type assignment struct {
	PainID     int64           `json:"pain_id"`
	ClusterID  json.RawMessage `json:"cluster_id"`
	NewCluster *struct {
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
	} `json:"new_cluster"`
}

// Clusterer assigns unclustered pains to topic clusters and maintains
// their running statistics.
type Clusterer struct {
	llm    gemini.Client
	store  database.Store
	cfg    config.PainsConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewClusterer creates a pain clusterer.
func NewClusterer(llm gemini.Client, store database.Store, cfg config.PainsConfig, logger *slog.Logger) *Clusterer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Clusterer{
		llm:    llm,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "pain_clusterer"),
	}
}

// WithClock overrides the time source used for trend computation.
func (c *Clusterer) WithClock(now func() time.Time) *Clusterer {
	c.now = now
	return c
}

// ClusterNewPains assigns every unclustered pain of the configured program
// to an existing or newly created cluster, then recomputes statistics for
// each touched cluster. Returns the number of pains assigned. Assignments
// referencing unknown pain ids or malformed cluster ids are ignored;
// repeated "new" assignments sharing a proposed name collapse onto one
// cluster. The whole run commits once.
func (c *Clusterer) ClusterNewPains(ctx context.Context) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}
	if c.llm == nil {
		return 0, gemini.ErrUnavailable
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start clustering run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	unclustered, err := tx.UnclusteredPains(ctx, c.cfg.ProgramID)
	if err != nil {
		return 0, err
	}
	if len(unclustered) == 0 {
		return 0, nil
	}

	clusters, err := tx.ClustersForProgram(ctx, c.cfg.ProgramID)
	if err != nil {
		return 0, err
	}

	assignments, err := c.requestAssignments(ctx, clusters, unclustered)
	if err != nil {
		return 0, err
	}

	knownClusters := make(map[int64]bool, len(clusters))
	for _, cl := range clusters {
		knownClusters[cl.ID] = true
	}
	painByID := make(map[int64]database.Pain, len(unclustered))
	for _, p := range unclustered {
		painByID[p.ID] = p
	}

	newByName := make(map[string]int64)
	touched := make(map[int64]bool)
	assigned := 0

	for _, a := range assignments {
		pain, ok := painByID[a.PainID]
		if !ok {
			c.logger.DebugContext(ctx, "Assignment references unknown pain, ignoring", "pain_id", a.PainID)
			continue
		}

		clusterID, ok := c.resolveClusterID(ctx, tx, a, knownClusters, newByName)
		if !ok {
			continue
		}

		if err := tx.AssignPainToCluster(ctx, pain.ID, clusterID); err != nil {
			return 0, err
		}
		touched[clusterID] = true
		assigned++
	}

	for clusterID := range touched {
		if err := c.recomputeStats(ctx, tx, clusterID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clustering run: %w", err)
	}

	c.logger.InfoContext(ctx, "Pain clustering complete",
		"program_id", c.cfg.ProgramID, "unclustered", len(unclustered),
		"assigned", assigned, "clusters_touched", len(touched))
	return assigned, nil
}

// requestAssignments serializes clusters and pains into the clustering
// prompt and parses the model's assignments array.
func (c *Clusterer) requestAssignments(ctx context.Context, clusters []database.PainCluster, unclustered []database.Pain) ([]assignment, error) {
	prompt, err := prompts.Build(prompts.PainClustering, map[string]string{
		"existing_clusters": formatClusters(clusters),
		"new_pains":         formatPains(unclustered),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build clustering prompt: %w", err)
	}

	raw, err := c.llm.Invoke(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("clustering call failed: %w", err)
	}

	var parsed struct {
		Assignments []assignment `json:"assignments"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		c.logger.ErrorContext(ctx, "Clustering response is not parseable JSON", "raw_response", raw)
		return nil, ErrUnparseableAssignments
	}
	return parsed.Assignments, nil
}

// resolveClusterID turns an assignment's cluster_id into a concrete
// cluster id, creating a new cluster on first sight of a proposed name.
// Returns false for malformed assignments, which are ignored.
func (c *Clusterer) resolveClusterID(ctx context.Context, tx database.RunTx, a assignment, knownClusters map[int64]bool, newByName map[string]int64) (int64, bool) {
	var numeric int64
	if err := json.Unmarshal(a.ClusterID, &numeric); err == nil {
		if knownClusters[numeric] {
			return numeric, true
		}
		c.logger.DebugContext(ctx, "Assignment references unknown cluster, ignoring",
			"pain_id", a.PainID, "cluster_id", numeric)
		return 0, false
	}

	var literal string
	if err := json.Unmarshal(a.ClusterID, &literal); err != nil || literal != "new" {
		c.logger.DebugContext(ctx, "Malformed cluster id in assignment, ignoring",
			"pain_id", a.PainID, "cluster_id", string(a.ClusterID))
		return 0, false
	}

	if a.NewCluster == nil || strings.TrimSpace(a.NewCluster.Name) == "" {
		c.logger.DebugContext(ctx, "New-cluster assignment without a name, ignoring", "pain_id", a.PainID)
		return 0, false
	}
	name := strings.TrimSpace(a.NewCluster.Name)

	if id, ok := newByName[name]; ok {
		return id, true
	}

	cluster := &database.PainCluster{
		UserID:      c.cfg.OwnerID,
		ProgramID:   c.cfg.ProgramID,
		Name:        name,
		Category:    NormalizeCategory(a.NewCluster.Category),
		Description: strings.TrimSpace(a.NewCluster.Description),
	}
	if err := tx.InsertCluster(ctx, cluster); err != nil {
		c.logger.ErrorContext(ctx, "Failed to create cluster, ignoring its assignments",
			"name", name, "error", err)
		return 0, false
	}

	newByName[name] = cluster.ID
	knownClusters[cluster.ID] = true
	return cluster.ID, true
}

// recomputeStats rebuilds a touched cluster's aggregates from its current
// membership: pain count, average intensity, first/last seen, and trend.
func (c *Clusterer) recomputeStats(ctx context.Context, tx database.RunTx, clusterID int64) error {
	cluster, err := tx.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if cluster == nil {
		return fmt.Errorf("touched cluster %d disappeared mid-run", clusterID)
	}

	members, err := tx.PainsInCluster(ctx, clusterID)
	if err != nil {
		return err
	}

	cluster.PainCount = len(members)
	cluster.AvgIntensity = 0
	cluster.FirstSeen = sql.NullTime{}
	cluster.LastSeen = sql.NullTime{}

	if len(members) > 0 {
		now := c.now().UTC()
		windowStart := now.Add(-c.cfg.TrendWindow())

		var sum float64
		recent := 0
		for _, p := range members {
			sum += IntensityScore(p.Intensity)

			ts := painTimestamp(p)
			if ts.After(windowStart) {
				recent++
			}
			if !cluster.FirstSeen.Valid || ts.Before(cluster.FirstSeen.Time) {
				cluster.FirstSeen = sql.NullTime{Time: ts, Valid: true}
			}
			if !cluster.LastSeen.Valid || ts.After(cluster.LastSeen.Time) {
				cluster.LastSeen = sql.NullTime{Time: ts, Valid: true}
			}
		}
		cluster.AvgIntensity = sum / float64(len(members))
		cluster.Trend = trendLabel(recent, len(members))
	}

	return tx.UpdateClusterStats(ctx, cluster)
}

// trendLabel classifies a cluster's recency profile: growing when more
// than half its pains fall inside the trend window, declining when none
// do, stable otherwise.
func trendLabel(recent, total int) string {
	switch {
	case total > 0 && recent*2 > total:
		return "growing"
	case recent == 0:
		return "declining"
	default:
		return "stable"
	}
}

// painTimestamp prefers the source message date, falling back to the
// row's creation time for undated pains.
func painTimestamp(p database.Pain) time.Time {
	if p.MessageDate.Valid {
		return p.MessageDate.Time
	}
	return p.CreatedAt
}

// formatClusters renders existing clusters for the clustering prompt.
func formatClusters(clusters []database.PainCluster) string {
	if len(clusters) == 0 {
		return "none"
	}
	var sb strings.Builder
	for _, cl := range clusters {
		fmt.Fprintf(&sb, "[%d] %s (%s): %s\n", cl.ID, cl.Name, cl.Category, cl.Description)
	}
	return sb.String()
}

// formatPains renders unclustered pains for the clustering prompt.
func formatPains(pains []database.Pain) string {
	var sb strings.Builder
	for _, p := range pains {
		fmt.Fprintf(&sb, "[%d] %s (%s, %s)\n", p.ID, p.Text, p.Category, p.Intensity)
	}
	return sb.String()
}
