package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestRunMigrationsTwice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	m := NewMigrationManager(db)
	for i := 0; i < 2; i++ {
		if err := m.RunMigrations(); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = 1`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("version 1 recorded %d times (%v)", n, err)
	}
}

func TestLoadOrdersByVersion(t *testing.T) {
	m := &MigrationManager{
		files: fstest.MapFS{
			"m/010_late.sql":   {Data: []byte("SELECT 10;")},
			"m/002_second.sql": {Data: []byte("SELECT 2;")},
			"m/notes.txt":      {Data: []byte("x")},
			"m/draft.sql":      {Data: []byte("SELECT 0;")},
		},
		dir: "m",
	}
	got, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "002_second" || got[1].Version != 10 {
		t.Fatalf("Load = %+v", got)
	}
}
