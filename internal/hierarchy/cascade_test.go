package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/nerrad567/facility-core/internal/pagination"
)

func addEvents(t *testing.T, db DB, deviceID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := db.ExecContext(context.Background(),
			"INSERT INTO events (id, device_id, value, created_at) VALUES (?, ?, ?, ?)",
			uuid.NewString(), deviceID, fmt.Sprint(i), fmt.Sprintf("2026-01-01T00:00:%02d.000000Z", i))
		mustOK(t, "insert event", err)
	}
}

func TestDeleteBuilding_UpdatesAncestors(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	tally, err := svc.Buildings.Delete(ctx, alice, tr.buildingChain(), tr.building)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tally.Deleted[KindBuilding] != 1 || tally.Deleted[KindFloor] != 1 || tally.Deleted[KindRoom] != 1 || tally.Devices() != 1 {
		t.Errorf("tally = %+v", tally.Deleted)
	}

	site, err := svc.Sites.Get(ctx, alice, tr.siteChain(), tr.site)
	mustOK(t, "get site", err)
	if site.BuildingCount != 0 || site.DeviceCount != 0 {
		t.Errorf("site counters = building %d, device %d; want 0, 0", site.BuildingCount, site.DeviceCount)
	}
	org, err := svc.Organizations.Get(ctx, alice, nil, tr.org)
	mustOK(t, "get organization", err)
	if org.DeviceCount != 0 || org.SiteCount != 1 {
		t.Errorf("org counters = site %d, device %d; want 1, 0", org.SiteCount, org.DeviceCount)
	}

	page, err := svc.Buildings.List(ctx, alice, tr.buildingChain(), "", pagination.Options{Page: 1, Limit: 10})
	mustOK(t, "list buildings", err)
	want := pagination.Meta{Page: 1, Limit: 10, TotalPages: 0, TotalResults: 0}
	if len(page.Results) != 0 || page.Pagination != want {
		t.Errorf("page = %+v, want empty with %+v", page, want)
	}

	if _, err := svc.Devices.Get(ctx, alice, tr.deviceChain(), tr.device); !errors.Is(err, ErrNotFound) {
		t.Errorf("Devices.Get() after cascade error = %v, want ErrNotFound", err)
	}
}

func TestDelete_RemovesWholeSubtree(t *testing.T) {
	svc, db := newTestService(t, KindOrganization, nil)
	ctx := context.Background()

	org, err := svc.Organizations.Create(ctx, alice, nil, &Organization{Name: "Acme"})
	mustOK(t, "create organization", err)
	site, err := svc.Sites.Create(ctx, alice, []string{org.ID}, &Site{Name: "Campus"})
	mustOK(t, "create site", err)

	n := 0
	for b := 0; b < 2; b++ {
		building, err := svc.Buildings.Create(ctx, alice, []string{org.ID, site.ID}, &Building{Name: "B"})
		mustOK(t, "create building", err)
		for f := 0; f < 2; f++ {
			fchain := []string{org.ID, site.ID, building.ID}
			floor, err := svc.Floors.Create(ctx, alice, fchain, &Floor{Name: "F"})
			mustOK(t, "create floor", err)
			for r := 0; r < 2; r++ {
				rchain := append(fchain[:3:3], floor.ID)
				room, err := svc.Rooms.Create(ctx, alice, rchain, &Room{Name: "R"})
				mustOK(t, "create room", err)
				for d := 0; d < 2; d++ {
					n++
					dev, err := svc.Devices.Create(ctx, alice, append(rchain[:4:4], room.ID),
						&Device{Name: "D", UUID: fmt.Sprintf("uuid-%d", n), Type: "co2"})
					mustOK(t, "create device", err)
					addEvents(t, db, dev.ID, 1)
				}
			}
		}
	}

	got, err := svc.Organizations.Get(ctx, alice, nil, org.ID)
	mustOK(t, "get organization", err)
	if got.DeviceCount != 16 {
		t.Fatalf("org deviceCount = %d, want 16", got.DeviceCount)
	}

	tally, err := svc.Sites.Delete(ctx, alice, []string{org.ID}, site.ID)
	mustOK(t, "delete site", err)
	if tally.Deleted[KindBuilding] != 2 || tally.Deleted[KindFloor] != 4 || tally.Deleted[KindRoom] != 8 || tally.Devices() != 16 {
		t.Errorf("tally = %+v", tally.Deleted)
	}
	if tally.Events != 16 {
		t.Errorf("tally.Events = %d, want 16", tally.Events)
	}

	for _, table := range []string{"sites", "buildings", "floors", "rooms", "devices", "events"} {
		if n := countRows(t, db, table, ""); n != 0 {
			t.Errorf("%s rows = %d after cascade, want 0", table, n)
		}
	}

	got, err = svc.Organizations.Get(ctx, alice, nil, org.ID)
	mustOK(t, "get organization", err)
	if got.DeviceCount != 0 || got.SiteCount != 0 {
		t.Errorf("org counters = site %d, device %d; want 0, 0", got.SiteCount, got.DeviceCount)
	}
}

func TestDelete_PointsCountFollowsEvents(t *testing.T) {
	svc, db := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	addEvents(t, db, tr.device, 3)
	for kind, id := range map[Kind]string{KindSite: tr.site, KindBuilding: tr.building, KindFloor: tr.floor} {
		mustOK(t, "adjust points", svc.Stats.AdjustStats(ctx, kind, id, PointsCount, 3))
	}

	tally, err := svc.Rooms.Delete(ctx, alice, tr.roomChain(), tr.room)
	mustOK(t, "delete room", err)
	if tally.Events != 3 {
		t.Errorf("tally.Events = %d, want 3", tally.Events)
	}

	site, err := svc.Sites.Get(ctx, alice, tr.siteChain(), tr.site)
	mustOK(t, "get site", err)
	floor, err := svc.Floors.Get(ctx, alice, tr.floorChain(), tr.floor)
	mustOK(t, "get floor", err)
	if site.PointsCount != 0 || floor.PointsCount != 0 {
		t.Errorf("pointsCount = site %d, floor %d; want 0, 0", site.PointsCount, floor.PointsCount)
	}
	if floor.RoomCount != 0 || floor.DeviceCount != 0 {
		t.Errorf("floor counters = room %d, device %d; want 0, 0", floor.RoomCount, floor.DeviceCount)
	}
}

func TestDelete_NotOwnedTouchesNothing(t *testing.T) {
	svc, db := newTestService(t, KindOrganization, nil)
	a := buildTree(t, svc, alice, "dev-a")
	ctx := context.Background()

	if _, err := svc.Buildings.Delete(ctx, bob, a.buildingChain(), a.building); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() by other principal error = %v, want ErrNotFound", err)
	}

	// A resolved parent that does not own the target.
	parent, err := svc.Resolver.ResolveParent(ctx, alice, KindBuilding, a.buildingChain())
	mustOK(t, "resolve", err)
	if _, err := svc.Cascade.Delete(ctx, parent, KindBuilding, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cascade.Delete() missing target error = %v, want ErrNotFound", err)
	}

	if n := countRows(t, db, "devices", ""); n != 1 {
		t.Errorf("devices rows = %d, want 1", n)
	}
	site, err := svc.Sites.Get(ctx, alice, a.siteChain(), a.site)
	mustOK(t, "get site", err)
	if site.BuildingCount != 1 || site.DeviceCount != 1 {
		t.Errorf("site counters changed: %+v", site)
	}
}

func TestDelete_ImageCleanupFailureStillDeletes(t *testing.T) {
	images := &fakeImages{failDelete: true}
	svc, db := newTestService(t, KindOrganization, images)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "UPDATE buildings SET cover = ? WHERE id = ?", "https://cdn.test/b.png", tr.building)
	mustOK(t, "set cover", err)
	_, err = db.ExecContext(ctx, "UPDATE floors SET diagram = ? WHERE id = ?", "https://cdn.test/f.png", tr.floor)
	mustOK(t, "set diagram", err)

	if _, err := svc.Buildings.Delete(ctx, alice, tr.buildingChain(), tr.building); err != nil {
		t.Fatalf("Delete() error = %v, want success despite image failure", err)
	}
	if n := countRows(t, db, "buildings", ""); n != 0 {
		t.Errorf("buildings rows = %d, want 0", n)
	}

	deleted := images.deletedURLs()
	if len(deleted) != 2 || deleted[0] != "https://cdn.test/b.png" || deleted[1] != "https://cdn.test/f.png" {
		t.Errorf("image deletes = %v", deleted)
	}
}

// racingStore creates a device under the room right after the room's
// devices were bulk-deleted, the way a concurrent request would.
type racingStore struct {
	cascadeStore
	room   string
	create func()
}

func (r racingStore) deleteChildren(ctx context.Context, kind Kind, parentID string) (int64, error) {
	n, err := r.cascadeStore.deleteChildren(ctx, kind, parentID)
	if err == nil && kind == KindDevice && parentID == r.room {
		r.create()
	}
	return n, err
}

func TestDelete_ConcurrentCreateLeavesOrphan(t *testing.T) {
	svc, db := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	// Resolved before the cascade starts, as a racing request would hold it.
	roomPath, err := svc.Resolver.Resolve(ctx, alice, KindRoom, tr.roomChain(), tr.room)
	mustOK(t, "resolve room", err)

	var orphan *Device
	svc.Cascade.store = racingStore{
		cascadeStore: svc.Cascade.store,
		room:         tr.room,
		create: func() {
			orphan, err = svc.Devices.insert(ctx, roomPath, &Device{Name: "Late", UUID: "dev-late", Type: "co2"})
			mustOK(t, "racing insert", err)
		},
	}

	if _, err := svc.Buildings.Delete(ctx, alice, tr.buildingChain(), tr.building); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if orphan == nil {
		t.Fatal("racing create never ran")
	}

	if n := countRows(t, db, "devices", "id = ?", orphan.ID); n != 1 {
		t.Errorf("orphan rows = %d, want 1", n)
	}
	site, err := svc.Sites.Get(ctx, alice, tr.siteChain(), tr.site)
	mustOK(t, "get site", err)
	org, err := svc.Organizations.Get(ctx, alice, nil, tr.org)
	mustOK(t, "get organization", err)
	if site.DeviceCount != 1 || org.DeviceCount != 1 {
		t.Errorf("deviceCount = site %d, org %d; want the orphan counted, 1 and 1", site.DeviceCount, org.DeviceCount)
	}
	if site.BuildingCount != 0 {
		t.Errorf("site buildingCount = %d, want 0", site.BuildingCount)
	}
}

func TestDelete_StorageFailureMidCascade(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	topo := MustTopology(KindOrganization)
	coord := NewCoordinator(db, topo, NewStats(db), nil, nil)

	org, site, building := uuid.NewString(), uuid.NewString(), uuid.NewString()
	floor, room, device := uuid.NewString(), uuid.NewString(), uuid.NewString()
	parent := Path{Principal: alice, Chain: []Hop{
		{KindOrganization, org}, {KindSite, site}, {KindBuilding, building},
	}}
	deviceCols := "id, '', (SELECT COUNT(*) FROM events WHERE events.device_id = devices.id)"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, diagram, 0 FROM floors WHERE id = ? AND parent_id = ?")).
		WithArgs(floor, building).
		WillReturnRows(sqlmock.NewRows([]string{"id", "diagram", "events"}).AddRow(floor, "", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, diagram, 0 FROM rooms WHERE parent_id = ?")).
		WithArgs(floor).
		WillReturnRows(sqlmock.NewRows([]string{"id", "diagram", "events"}).AddRow(room, "", 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM floors WHERE id = ? AND parent_id = ?")).
		WithArgs(floor, building).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rooms WHERE parent_id = ?")).
		WithArgs(floor).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+deviceCols+" FROM devices WHERE parent_id = ?")).
		WithArgs(room).
		WillReturnRows(sqlmock.NewRows([]string{"id", "image", "events"}).AddRow(device, "", 4))
	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM devices WHERE parent_id = ?")).
		WithArgs(room).
		WillReturnError(boom)

	tally, err := coord.Delete(context.Background(), parent, KindFloor, floor)
	if !errors.Is(err, boom) {
		t.Fatalf("Delete() error = %v, want %v", err, boom)
	}
	// Deleted rows stay deleted; the failed level is not counted and no
	// counter is touched.
	if tally.Deleted[KindFloor] != 1 || tally.Deleted[KindRoom] != 1 || tally.Devices() != 0 {
		t.Errorf("tally = %+v", tally.Deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
