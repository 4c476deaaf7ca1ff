package hierarchy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestRegistry(t *testing.T) {
	tests := []struct {
		kind  Kind
		field CounterField
		want  bool
	}{
		{KindOrganization, SiteCount, true},
		{KindOrganization, DeviceCount, true},
		{KindOrganization, PointsCount, false},
		{KindSite, BuildingCount, true},
		{KindSite, PointsCount, true},
		{KindSite, FloorCount, false},
		{KindBuilding, FloorCount, true},
		{KindFloor, RoomCount, true},
		{KindRoom, DeviceCount, true},
		{KindRoom, PointsCount, false},
		{KindDevice, DeviceCount, false},
	}
	for _, tt := range tests {
		if got := Allows(tt.kind, tt.field); got != tt.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.kind, tt.field, got, tt.want)
		}
	}

	if f, ok := ChildCounter(KindFloor); !ok || f != FloorCount {
		t.Errorf("ChildCounter(floor) = %s, %v", f, ok)
	}
	if _, ok := ChildCounter(KindOrganization); ok {
		t.Error("organizations are counted by nobody")
	}
}

func TestAdjustStats_UnknownField(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")

	err := svc.Stats.IncreaseStats(context.Background(), KindRoom, tr.room, PointsCount)
	if !errors.Is(err, ErrUnknownCounter) {
		t.Errorf("IncreaseStats(room, pointsCount) error = %v, want ErrUnknownCounter", err)
	}
}

func TestAdjustStats_MissingRowIsNoop(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	if err := svc.Stats.DecreaseStats(context.Background(), KindSite, uuid.NewString(), DeviceCount); err != nil {
		t.Errorf("DecreaseStats() on missing row error = %v", err)
	}
}

func TestAdjustStats_ConcurrentIncrements(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Stats.IncreaseStats(ctx, KindSite, tr.site, PointsCount)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("IncreaseStats() error = %v", err)
		}
	}

	site, err := svc.Sites.Get(ctx, alice, tr.siteChain(), tr.site)
	mustOK(t, "get site", err)
	if site.PointsCount != workers {
		t.Errorf("PointsCount = %d, want %d", site.PointsCount, workers)
	}
}

func TestCreate_CountersOnEveryAncestor(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	org, err := svc.Organizations.Get(ctx, alice, nil, tr.org)
	mustOK(t, "get organization", err)
	site, err := svc.Sites.Get(ctx, alice, tr.siteChain(), tr.site)
	mustOK(t, "get site", err)
	building, err := svc.Buildings.Get(ctx, alice, tr.buildingChain(), tr.building)
	mustOK(t, "get building", err)
	floor, err := svc.Floors.Get(ctx, alice, tr.floorChain(), tr.floor)
	mustOK(t, "get floor", err)
	room, err := svc.Rooms.Get(ctx, alice, tr.roomChain(), tr.room)
	mustOK(t, "get room", err)

	checks := []struct {
		name      string
		got, want int
	}{
		{"org.siteCount", org.SiteCount, 1},
		{"org.deviceCount", org.DeviceCount, 1},
		{"site.buildingCount", site.BuildingCount, 1},
		{"site.deviceCount", site.DeviceCount, 1},
		{"building.floorCount", building.FloorCount, 1},
		{"building.deviceCount", building.DeviceCount, 1},
		{"floor.roomCount", floor.RoomCount, 1},
		{"floor.deviceCount", floor.DeviceCount, 1},
		{"room.deviceCount", room.DeviceCount, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestCounterConservation(t *testing.T) {
	svc, _ := newTestService(t, KindOrganization, nil)
	tr := buildTree(t, svc, alice, "dev-1")
	ctx := context.Background()

	const created, deleted = 6, 4
	var ids []string
	for i := 0; i < created; i++ {
		room, err := svc.Rooms.Create(ctx, alice, tr.roomChain(), &Room{Name: "Store"})
		mustOK(t, "create room", err)
		ids = append(ids, room.ID)
	}
	for _, id := range ids[:deleted] {
		_, err := svc.Rooms.Delete(ctx, alice, tr.roomChain(), id)
		mustOK(t, "delete room", err)
	}

	floor, err := svc.Floors.Get(ctx, alice, tr.floorChain(), tr.floor)
	mustOK(t, "get floor", err)
	// buildTree already created one room.
	if want := 1 + created - deleted; floor.RoomCount != want {
		t.Errorf("RoomCount = %d, want %d", floor.RoomCount, want)
	}
}
