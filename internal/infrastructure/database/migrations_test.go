package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = files
	MigrationsDir = "."
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_120000_create_sensors.up.sql":   {Data: []byte("CREATE TABLE test_sensors (id TEXT PRIMARY KEY);")},
		"20260301_120000_create_sensors.down.sql": {Data: []byte("DROP TABLE test_sensors;")},
		"20260301_130000_create_entities.up.sql":  {Data: []byte("CREATE TABLE test_entities (id TEXT PRIMARY KEY);")},
		"20260301_130000_create_entities.down.sql": {
			Data: []byte("DROP TABLE test_entities;"),
		},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"test_sensors", "test_entities"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_entities") {
		t.Error("latest migration was not rolled back")
	}
	if !tableExists(t, db, "test_sensors") {
		t.Error("earlier migration should remain")
	}

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "create_entities" {
		t.Errorf("pending = %+v, want create_entities", pending)
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	useMigrations(t, nil)
	MigrationsFS = nil
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
	if err := db.MigrateDown(context.Background()); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_DownWithoutUp(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_120000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	})
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err == nil {
		t.Error("Migrate() should reject a migration without up SQL")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"valid up", "20260301_120000_sensors.up.sql", "20260301_120000", true, true},
		{"valid down", "20260301_120000_sensors.down.sql", "20260301_120000", false, true},
		{"not sql file", "readme.txt", "", false, false},
		{"missing direction", "20260301_120000_sensors.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%s, %v), want (%s, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260301_120000_sensors.up.sql", "sensors"},
		{"20260301_120100_entity_snapshots.down.sql", "entity_snapshots"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
