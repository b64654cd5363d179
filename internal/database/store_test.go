package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadscout/leadscout/internal/database"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := database.ApplyMigrations(db.DB, "test"); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return database.NewStore(db, nil)
}

func testPain(quote string) *database.Pain {
	return &database.Pain{
		UserID:          42,
		ProgramID:       7,
		Text:            "struggles to find clients",
		OriginalQuote:   quote,
		Category:        "marketing",
		Intensity:       "medium",
		SourceChat:      "builders",
		SourceMessageID: 100,
	}
}

func TestFindPainSeesUncommittedInsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	pain := testPain("no clients at all")
	if err := tx.InsertPain(ctx, pain); err != nil {
		t.Fatalf("InsertPain: %v", err)
	}
	if pain.ID == 0 {
		t.Fatal("InsertPain did not set the generated ID")
	}

	// The dedup lookup must observe the pending insert before any commit.
	found, err := tx.FindPain(ctx, 42, "builders", 100, "no clients at all")
	if err != nil {
		t.Fatalf("FindPain: %v", err)
	}
	if found == nil {
		t.Fatal("FindPain did not see the uncommitted insert")
	}
	if found.ID != pain.ID {
		t.Errorf("FindPain returned ID %d, want %d", found.ID, pain.ID)
	}

	missing, err := tx.FindPain(ctx, 42, "builders", 100, "a different quote")
	if err != nil {
		t.Fatalf("FindPain (absent): %v", err)
	}
	if missing != nil {
		t.Errorf("FindPain returned a row for an absent key: %+v", missing)
	}
}

func TestRollbackDiscardsRun(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.InsertPain(ctx, testPain("rolled back")); err != nil {
		t.Fatalf("InsertPain: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	tx2, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	found, err := tx2.FindPain(ctx, 42, "builders", 100, "rolled back")
	if err != nil {
		t.Fatalf("FindPain: %v", err)
	}
	if found != nil {
		t.Errorf("rolled-back insert is still visible: %+v", found)
	}
}

func TestClusterAssignmentAndUnclusteredPains(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	first := testPain("quote one")
	second := testPain("quote two")
	second.SourceMessageID = 101
	for _, p := range []*database.Pain{first, second} {
		if err := tx.InsertPain(ctx, p); err != nil {
			t.Fatalf("InsertPain: %v", err)
		}
	}

	unclustered, err := tx.UnclusteredPains(ctx, 7)
	if err != nil {
		t.Fatalf("UnclusteredPains: %v", err)
	}
	if len(unclustered) != 2 {
		t.Fatalf("got %d unclustered pains, want 2", len(unclustered))
	}

	cluster := &database.PainCluster{
		UserID:      42,
		ProgramID:   7,
		Name:        "client acquisition",
		Category:    "marketing",
		Description: "finding and keeping clients",
	}
	if err := tx.InsertCluster(ctx, cluster); err != nil {
		t.Fatalf("InsertCluster: %v", err)
	}
	if cluster.ID == 0 {
		t.Fatal("InsertCluster did not set the generated ID")
	}

	if err := tx.AssignPainToCluster(ctx, first.ID, cluster.ID); err != nil {
		t.Fatalf("AssignPainToCluster: %v", err)
	}

	unclustered, err = tx.UnclusteredPains(ctx, 7)
	if err != nil {
		t.Fatalf("UnclusteredPains after assignment: %v", err)
	}
	if len(unclustered) != 1 || unclustered[0].ID != second.ID {
		t.Errorf("unexpected unclustered set after assignment: %+v", unclustered)
	}

	inCluster, err := tx.PainsInCluster(ctx, cluster.ID)
	if err != nil {
		t.Fatalf("PainsInCluster: %v", err)
	}
	if len(inCluster) != 1 || inCluster[0].ID != first.ID {
		t.Errorf("unexpected cluster membership: %+v", inCluster)
	}
}

func TestUpdateClusterStatsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	cluster := &database.PainCluster{
		UserID:    42,
		ProgramID: 7,
		Name:      "ad costs",
		Category:  "marketing",
	}
	if err := tx.InsertCluster(ctx, cluster); err != nil {
		t.Fatalf("InsertCluster: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	cluster.PainCount = 3
	cluster.AvgIntensity = 2.0
	cluster.FirstSeen = sql.NullTime{Time: now.Add(-48 * time.Hour), Valid: true}
	cluster.LastSeen = sql.NullTime{Time: now, Valid: true}
	cluster.Trend = "growing"
	if err := tx.UpdateClusterStats(ctx, cluster); err != nil {
		t.Fatalf("UpdateClusterStats: %v", err)
	}

	got, err := tx.GetCluster(ctx, cluster.ID)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	if got == nil {
		t.Fatal("GetCluster returned nil for an existing cluster")
	}
	if got.PainCount != 3 || got.AvgIntensity != 2.0 || got.Trend != "growing" {
		t.Errorf("stats did not round-trip: %+v", got)
	}
	if !got.FirstSeen.Valid || !got.LastSeen.Valid {
		t.Errorf("seen timestamps did not round-trip: %+v", got)
	}
}
