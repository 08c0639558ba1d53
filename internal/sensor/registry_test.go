package sensor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, *SQLiteRepository) {
	t.Helper()
	repo := NewSQLiteRepository(openTestDB(t).DB)
	return NewRegistry(repo), repo
}

func TestRegistry_Upsert(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	created, err := reg.Upsert(ctx, rainSensor())
	if err != nil || !created {
		t.Fatalf("first Upsert() = %v, %v; want created", created, err)
	}

	s := rainSensor()
	s.Name = "Renamed"
	created, err = reg.Upsert(ctx, s)
	if err != nil || created {
		t.Fatalf("second Upsert() = %v, %v; want update", created, err)
	}

	stored, err := repo.GetByID(ctx, s.ID)
	if err != nil || stored.Name != "Renamed" {
		t.Errorf("repository holds %+v, %v", stored, err)
	}

	bad := rainSensor()
	bad.ID = ""
	if _, err := reg.Upsert(ctx, bad); !errors.Is(err, ErrInvalidSensor) {
		t.Errorf("Upsert(invalid) error = %v", err)
	}
}

func TestRegistry_RefreshCacheAndGet(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	if err := repo.Create(ctx, rainSensor()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}

	got, err := reg.Get(ctx, "08AABBCCDDEE")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Measurements[0].Name = "mutated"
	again, _ := reg.Get(ctx, "08AABBCCDDEE")
	if again.Measurements[0].Name != "Temperature" {
		t.Error("Get() exposes cached sensor")
	}

	if _, err := reg.Get(ctx, "missing"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}

	if list := reg.List(); len(list) != 1 {
		t.Errorf("List() = %d sensors", len(list))
	}
}

func TestRegistry_Status(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)

	if _, err := reg.Upsert(ctx, rainSensor()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	st := reg.Status("08AABBCCDDEE")
	if st.Known || st.Online {
		t.Errorf("fresh status = %+v, want unknown/offline", st)
	}
	if st.UpdatePeriod != 7*time.Minute {
		t.Errorf("UpdatePeriod = %v, want metadata period", st.UpdatePeriod)
	}

	reg.MarkSeen("08AABBCCDDEE")
	if st := reg.Status("08AABBCCDDEE"); !st.Online || !st.Known {
		t.Errorf("after MarkSeen status = %+v", st)
	}
	if reg.OnlineCount() != 1 {
		t.Errorf("OnlineCount() = %d", reg.OnlineCount())
	}

	changed, err := reg.SetStatus(ctx, StatusChanged{SensorID: "08AABBCCDDEE", Online: false, UpdatePeriod: time.Minute})
	if err != nil || !changed {
		t.Fatalf("SetStatus() = %v, %v", changed, err)
	}
	st = reg.Status("08AABBCCDDEE")
	if st.Online || st.UpdatePeriod != time.Minute {
		t.Errorf("after SetStatus status = %+v", st)
	}
	stored, _ := repo.GetByID(ctx, "08AABBCCDDEE")
	if stored.UpdatePeriod != time.Minute {
		t.Errorf("persisted period = %v, want 1m", stored.UpdatePeriod)
	}

	changed, err = reg.SetStatus(ctx, StatusChanged{SensorID: "08AABBCCDDEE", Online: false})
	if err != nil || changed {
		t.Errorf("repeated SetStatus() = %v, %v; want unchanged", changed, err)
	}

	if _, err := reg.SetStatus(ctx, StatusChanged{SensorID: "ghost"}); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("SetStatus(ghost) error = %v", err)
	}
	if st := reg.Status("ghost"); st.Online {
		t.Error("unknown sensor should be offline")
	}
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	if _, err := reg.Upsert(ctx, rainSensor()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	reg.MarkSeen("08AABBCCDDEE")

	if err := reg.Delete(ctx, "08AABBCCDDEE"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if reg.Count() != 0 || reg.OnlineCount() != 0 {
		t.Errorf("registry not cleared: count=%d online=%d", reg.Count(), reg.OnlineCount())
	}
}
