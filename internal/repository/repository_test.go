package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/database"
	"github.com/jengzang/forestwatch-backend-go/internal/layerstatus"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db).RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCellUpsertAndFilter(t *testing.T) {
	repo := NewCellRepository(openTestDB(t))

	c := models.NewPlaceholderCell("r1", models.OperationSAD, 2, 12, 17)
	c.NDFIChange = 0.7
	if err := repo.UpsertCell(c); err != nil {
		t.Fatalf("UpsertCell: %v", err)
	}
	c.Done = true
	c.LatestChange = 1700000000000
	c.AddedBy = "ana"
	if err := repo.UpsertCell(c); err != nil {
		t.Fatalf("second UpsertCell: %v", err)
	}
	if err := repo.UpsertCell(models.NewPlaceholderCell("r1", models.OperationSAD, 1, 2, 3)); err != nil {
		t.Fatalf("UpsertCell: %v", err)
	}

	got, err := repo.GetCell("r1", models.OperationSAD, 2, 12, 17)
	if err != nil || got == nil {
		t.Fatalf("GetCell = %v, %v", got, err)
	}
	if !got.Done || got.AddedBy != "ana" || got.NDFIChange != 0.7 || got.MapFourLayerStatus != models.DefaultMapFourLayerStatus {
		t.Fatalf("cell = %+v", got)
	}
	if missing, err := repo.GetCell("r1", models.OperationBaseline, 2, 12, 17); err != nil || missing != nil {
		t.Fatalf("other operation = %v, %v", missing, err)
	}

	all, err := repo.ListCells("r1", models.OperationSAD, models.CellFilter{})
	if err != nil || len(all) != 2 || all[0].Z != 1 {
		t.Fatalf("ListCells = %v, %v", all, err)
	}
	changed, err := repo.ListCells("r1", models.OperationSAD, models.CellFilter{Changed: true})
	if err != nil || len(changed) != 1 || changed[0].ID() != "2_12_17" {
		t.Fatalf("changed = %v, %v", changed, err)
	}
	z := 1
	if got, _ := repo.ListCells("r1", models.OperationSAD, models.CellFilter{Z: &z}); len(got) != 1 {
		t.Fatalf("zoom filter = %v", got)
	}
}

func TestCellLayerStatusDefaults(t *testing.T) {
	db := openTestDB(t)
	repo := NewCellRepository(db)

	if _, err := db.Exec(`INSERT INTO cells (report_id, operation, z, x, y) VALUES ('r1', 'sad', 1, 0, 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	bare, err := repo.GetCell("r1", models.OperationSAD, 1, 0, 0)
	if err != nil || bare == nil {
		t.Fatalf("GetCell = %v, %v", bare, err)
	}
	want := layerstatus.Default().String()
	for pane := 1; pane <= 4; pane++ {
		s, _ := bare.LayerStatus(pane)
		if s != want {
			t.Fatalf("pane %d default = %q, want %q", pane, s, want)
		}
		if _, err := layerstatus.Parse(s); err != nil {
			t.Fatalf("pane %d default does not parse: %v", pane, err)
		}
	}

	empty := &models.Cell{ReportID: "r1", Operation: models.OperationSAD, Z: 2, X: 12, Y: 17, AddedBy: models.NobodySentinel, CompareView: models.CompareViewFour}
	if err := repo.UpsertCell(empty); err != nil {
		t.Fatalf("UpsertCell: %v", err)
	}
	got, err := repo.GetCell("r1", models.OperationSAD, 2, 12, 17)
	if err != nil || got == nil {
		t.Fatalf("GetCell = %v, %v", got, err)
	}
	if got.MapTwoLayerStatus != models.DefaultMapTwoLayerStatus {
		t.Fatalf("stored pane 2 = %q, want the pane default", got.MapTwoLayerStatus)
	}
	if empty.MapTwoLayerStatus != "" {
		t.Fatal("UpsertCell modified its argument")
	}
}

func TestPolygonSyncQueue(t *testing.T) {
	repo := NewPolygonRepository(openTestDB(t))

	p := &models.Polygon{
		ID:        "local-1",
		Paths:     [][]models.LatLng{{{Lat: 1, Lng: 2}, {Lat: 1, Lng: 3}, {Lat: 2, Lng: 3}}},
		Type:      models.PolygonDegradation,
		ReportID:  "r1",
		Operation: models.OperationSAD,
		CellID:    "2_12_17",
		SyncState: models.SyncUnsynced,
		Attempts:  2,
		LastError: "timeout",
		AddedOn:   time.UnixMilli(1000).UTC(),
	}
	if err := repo.SavePolygon(p); err != nil {
		t.Fatalf("SavePolygon: %v", err)
	}

	unsynced, err := repo.ListUnsynced()
	if err != nil || len(unsynced) != 1 {
		t.Fatalf("ListUnsynced = %v, %v", unsynced, err)
	}
	if got := unsynced[0]; got.Paths[0][1].Lng != 3 || got.Type != models.PolygonDegradation || got.Attempts != 2 || !got.AddedOn.Equal(p.AddedOn) {
		t.Fatalf("polygon = %+v", got)
	}

	p.ServerID = "srv-1"
	p.SyncState = models.SyncSynced
	if err := repo.SavePolygon(p); err != nil {
		t.Fatalf("SavePolygon update: %v", err)
	}
	if unsynced, _ := repo.ListUnsynced(); len(unsynced) != 0 {
		t.Fatalf("synced polygon still queued: %v", unsynced)
	}
	byCell, err := repo.ListByCell("r1", models.OperationSAD, models.PolygonFilter{CellID: "2_12_17"})
	if err != nil || len(byCell) != 1 || byCell[0].ServerID != "srv-1" {
		t.Fatalf("ListByCell = %v, %v", byCell, err)
	}

	if err := repo.DeletePolygon("local-1"); err != nil {
		t.Fatalf("DeletePolygon: %v", err)
	}
	if got, err := repo.GetPolygon("local-1"); err != nil || got != nil {
		t.Fatalf("GetPolygon after delete = %v, %v", got, err)
	}
}

func TestThresholdProfile(t *testing.T) {
	repo := NewThresholdRepository(openTestDB(t))
	if got, err := repo.Get("r1", models.OperationBaseline); err != nil || got != nil {
		t.Fatalf("empty Get = %v, %v", got, err)
	}
	p := &models.ThresholdProfile{ReportID: "r1", Operation: models.OperationBaseline, ParamsJSON: `{"low":150}`, VisibilityJSON: `{}`}
	if err := repo.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p.ParamsJSON = `{"low":160}`
	if err := repo.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get("r1", models.OperationBaseline)
	if err != nil || got.ParamsJSON != `{"low":160}` {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}
