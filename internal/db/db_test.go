package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	database, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return database
}

func TestNew_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "aligner.db")

	database := openTestDB(t, dbPath)
	defer database.Close()

	if database.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", database.Path(), dbPath)
	}

	tables := []string{"jobs", "segments", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_Pragmas(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "aligner.db"))
	defer database.Close()

	var journalMode string
	if err := database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	var foreignKeys int
	if err := database.Conn().QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("PRAGMA foreign_keys error = %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aligner.db")

	db1 := openTestDB(t, dbPath)
	db1.Close()

	db2 := openTestDB(t, dbPath)
	defer db2.Close()

	var count int
	if err := db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}
	if count != 2 {
		t.Errorf("migration count = %d, want 2", count)
	}
}

func TestMarkInterruptedJobs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aligner.db")

	db1 := openTestDB(t, dbPath)
	_, err := db1.Conn().Exec(`
		INSERT INTO jobs (id, status, source_uri, created_at, updated_at) VALUES
			('running-job', 'running', 's3://out/a.json', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z'),
			('pending-job', 'pending', 's3://out/b.json', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`)
	if err != nil {
		t.Fatalf("insert jobs error = %v", err)
	}
	db1.Close()

	db2 := openTestDB(t, dbPath)
	defer db2.Close()

	var status, outcome, errMsg string
	err = db2.Conn().QueryRow("SELECT status, outcome, error FROM jobs WHERE id = 'running-job'").Scan(&status, &outcome, &errMsg)
	if err != nil {
		t.Fatalf("query job error = %v", err)
	}
	if status != "failed" || outcome != "failed" {
		t.Errorf("status/outcome = %s/%s, want failed/failed", status, outcome)
	}
	if errMsg != "interrupted by restart" {
		t.Errorf("job error = %s, want 'interrupted by restart'", errMsg)
	}

	if err := db2.Conn().QueryRow("SELECT status FROM jobs WHERE id = 'pending-job'").Scan(&status); err != nil {
		t.Fatalf("query pending job error = %v", err)
	}
	if status != "pending" {
		t.Errorf("pending job status = %s, want pending", status)
	}
}

func TestSegmentsCascadeWithJob(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "aligner.db"))
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO jobs (id, status, source_uri, created_at, updated_at) VALUES ('j', 'completed', 'x', 'now', 'now')`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`INSERT INTO segments (job_id, position, start_time, end_time, start_ms, end_ms, transcript) VALUES ('j', 0, 'A', 'B', 0, 2000, 'hi')`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`DELETE FROM jobs WHERE id = 'j'`); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM segments`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("segments left after job delete = %d, want 0", count)
	}
}
