package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-weather/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(openTestDB(t).DB)

	s := rainSensor()
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, rainSensor()); !errors.Is(err, ErrSensorExists) {
		t.Errorf("duplicate Create() error = %v, want ErrSensorExists", err)
	}

	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != s.Name || got.Model != s.Model || got.UpdatePeriod != 7*time.Minute {
		t.Errorf("GetByID() = %+v", got)
	}
	if len(got.Measurements) != 3 || !got.Measurements[1].SupportsPriorValue {
		t.Errorf("measurements round trip = %+v", got.Measurements)
	}

	s.Name = "Garden rain gauge"
	s.UpdatePeriod = 0
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, s.ID)
	if got.Name != "Garden rain gauge" || got.UpdatePeriod != 0 {
		t.Errorf("after Update() = %+v", got)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d, %v", len(list), err)
	}

	if err := repo.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, s.ID); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
	if err := repo.Delete(ctx, s.ID); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
	if err := repo.Update(ctx, s); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Update() of missing sensor error = %v", err)
	}
}
