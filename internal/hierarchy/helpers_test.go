package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/nerrad567/facility-core/internal/infrastructure/database"
	"github.com/nerrad567/facility-core/internal/infrastructure/objectstore"
	_ "github.com/nerrad567/facility-core/migrations"
)

var (
	alice = Principal{SubjectID: "user-alice", Role: "user"}
	bob   = Principal{SubjectID: "user-bob", Role: "user"}
)

// openTestDB returns a migrated in-memory database.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func newTestService(t *testing.T, root Kind, images ImageStore) (*Service, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewService(db, Options{Topology: MustTopology(root), Images: images}), db
}

// tree holds one entity per level, created for a principal.
type tree struct {
	org, site, building, floor, room, device string
}

func (tr tree) siteChain() []string     { return []string{tr.org} }
func (tr tree) buildingChain() []string { return []string{tr.org, tr.site} }
func (tr tree) floorChain() []string    { return []string{tr.org, tr.site, tr.building} }
func (tr tree) roomChain() []string     { return []string{tr.org, tr.site, tr.building, tr.floor} }
func (tr tree) deviceChain() []string {
	return []string{tr.org, tr.site, tr.building, tr.floor, tr.room}
}

func buildTree(t *testing.T, svc *Service, p Principal, deviceUUID string) tree {
	t.Helper()
	ctx := context.Background()
	var tr tree

	org, err := svc.Organizations.Create(ctx, p, nil, &Organization{Name: "Acme"})
	mustOK(t, "create organization", err)
	tr.org = org.ID

	site, err := svc.Sites.Create(ctx, p, tr.siteChain(), &Site{Name: "Campus", Location: &Location{Latitude: 51.5, Longitude: -0.12}})
	mustOK(t, "create site", err)
	tr.site = site.ID

	building, err := svc.Buildings.Create(ctx, p, tr.buildingChain(), &Building{Name: "Main Building"})
	mustOK(t, "create building", err)
	tr.building = building.ID

	floor, err := svc.Floors.Create(ctx, p, tr.floorChain(), &Floor{Name: "Ground"})
	mustOK(t, "create floor", err)
	tr.floor = floor.ID

	room, err := svc.Rooms.Create(ctx, p, tr.roomChain(), &Room{Name: "Plant Room"})
	mustOK(t, "create room", err)
	tr.room = room.ID

	device, err := svc.Devices.Create(ctx, p, tr.deviceChain(), &Device{Name: "Boiler Temp", UUID: deviceUUID, Type: "temperature"})
	mustOK(t, "create device", err)
	tr.device = device.ID

	return tr
}

func mustOK(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

func countRows(t *testing.T, db DB, table, where string, args ...any) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// fakeImages is an in-memory ImageStore.
type fakeImages struct {
	mu         sync.Mutex
	uploads    []string
	deleted    []string
	failUpload bool
	failDelete bool
}

func (f *fakeImages) UploadImage(_ context.Context, ownerKey, folder string, file objectstore.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return "", objectstore.ErrUploadFailed
	}
	if _, err := io.ReadAll(file.Body); err != nil {
		return "", err
	}
	url := fmt.Sprintf("https://cdn.test/%s/%s/%d-%s", ownerKey, folder, len(f.uploads), file.Filename)
	f.uploads = append(f.uploads, url)
	return url, nil
}

func (f *fakeImages) DeleteImage(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	if f.failDelete {
		return errors.New("bucket unavailable")
	}
	return nil
}

func (f *fakeImages) deletedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
