package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/database"
	"github.com/nerrad567/facility-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/facility-core/internal/infrastructure/redisstream"
	"github.com/nerrad567/facility-core/internal/pagination"
	_ "github.com/nerrad567/facility-core/migrations"
)

var (
	alice = hierarchy.Principal{SubjectID: "user-alice"}
	bob   = hierarchy.Principal{SubjectID: "user-bob"}
)

type fixture struct {
	db      *database.DB
	svc     *hierarchy.Service
	repo    *Repository
	chain   []string // ancestors of the device
	device  string
	site    string
	floor   string
	clock   time.Time
	clockMu sync.Mutex
}

func (f *fixture) now() time.Time {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	f := &fixture{db: db, svc: hierarchy.NewService(db, hierarchy.Options{}), repo: NewRepository(db),
		clock: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("building tree: %v", err)
		}
	}
	org, err := f.svc.Organizations.Create(ctx, alice, nil, &hierarchy.Organization{Name: "Acme"})
	must(err)
	site, err := f.svc.Sites.Create(ctx, alice, []string{org.ID}, &hierarchy.Site{Name: "Campus"})
	must(err)
	building, err := f.svc.Buildings.Create(ctx, alice, []string{org.ID, site.ID}, &hierarchy.Building{Name: "Main"})
	must(err)
	floor, err := f.svc.Floors.Create(ctx, alice, []string{org.ID, site.ID, building.ID}, &hierarchy.Floor{Name: "Ground"})
	must(err)
	room, err := f.svc.Rooms.Create(ctx, alice, []string{org.ID, site.ID, building.ID, floor.ID}, &hierarchy.Room{Name: "Plant"})
	must(err)
	f.chain = []string{org.ID, site.ID, building.ID, floor.ID, room.ID}
	dev, err := f.svc.Devices.Create(ctx, alice, f.chain, &hierarchy.Device{Name: "Boiler", UUID: "boiler-01", Type: "temperature"})
	must(err)
	f.device, f.site, f.floor = dev.ID, site.ID, floor.ID
	return f
}

func (f *fixture) ingestor(sinks ...Sink) *Ingestor {
	return NewIngestor(f.svc.Devices, f.svc.Stats, f.repo, WithSinks(sinks...), WithClock(f.now))
}

type recordingSink struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (s *recordingSink) Deliver(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return s.err
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sink := &recordingSink{}

	ev, err := f.ingestor(sink).Ingest(ctx, Reading{UUID: "boiler-01", Value: "21.5"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if ev.Device != f.device || ev.Value != "21.5" {
		t.Errorf("event = %+v", ev)
	}

	dev, err := f.svc.Devices.Get(ctx, alice, f.chain, f.device)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if dev.Value != "21.5" {
		t.Errorf("device value = %q, want 21.5", dev.Value)
	}

	site, err := f.svc.Sites.Get(ctx, alice, f.chain[:1], f.site)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	floor, err := f.svc.Floors.Get(ctx, alice, f.chain[:3], f.floor)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if site.PointsCount != 1 || floor.PointsCount != 1 {
		t.Errorf("pointsCount = site %d, floor %d; want 1, 1", site.PointsCount, floor.PointsCount)
	}

	if len(sink.notices) != 1 || sink.notices[0].Device.UUID != "boiler-01" || sink.notices[0].Device.Value != "21.5" {
		t.Errorf("notices = %+v", sink.notices)
	}
}

func TestIngest_UnknownUUID(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}

	_, err := f.ingestor(sink).Ingest(context.Background(), Reading{UUID: "ghost", Value: "1"})
	if !errors.Is(err, hierarchy.ErrNotFound) {
		t.Fatalf("Ingest() error = %v, want ErrNotFound", err)
	}

	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		t.Fatalf("counting events: %v", err)
	}
	if n != 0 || len(sink.notices) != 0 {
		t.Errorf("events = %d, notices = %d; want nothing recorded", n, len(sink.notices))
	}
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture(t)
	in := f.ingestor()
	for _, r := range []Reading{{UUID: "", Value: "1"}, {UUID: "boiler-01", Value: ""}} {
		if _, err := in.Ingest(context.Background(), r); !errors.Is(err, hierarchy.ErrValidation) {
			t.Errorf("Ingest(%+v) error = %v, want ErrValidation", r, err)
		}
	}
}

func TestIngest_SinkFailureKeepsEvent(t *testing.T) {
	f := newFixture(t)
	failing := &recordingSink{err: errors.New("broker down")}
	after := &recordingSink{}

	if _, err := f.ingestor(failing, after).Ingest(context.Background(), Reading{UUID: "boiler-01", Value: "7"}); err != nil {
		t.Fatalf("Ingest() error = %v, want success despite sink failure", err)
	}
	if len(after.notices) != 1 {
		t.Errorf("later sink notices = %d, want 1", len(after.notices))
	}
}

func TestDeleteDevice_ReleasesPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.ingestor()
	for i := 0; i < 3; i++ {
		if _, err := in.Ingest(ctx, Reading{UUID: "boiler-01", Value: "1"}); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	tally, err := f.svc.Devices.Delete(ctx, alice, f.chain, f.device)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tally.Events != 3 {
		t.Errorf("tally.Events = %d, want 3", tally.Events)
	}
	site, err := f.svc.Sites.Get(ctx, alice, f.chain[:1], f.site)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if site.PointsCount != 0 || site.DeviceCount != 0 {
		t.Errorf("site = points %d, devices %d; want 0, 0", site.PointsCount, site.DeviceCount)
	}
}

func TestEventsList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.ingestor()
	var created []*Event
	for _, v := range []string{"1", "2", "3", "4"} {
		ev, err := in.Ingest(ctx, Reading{UUID: "boiler-01", Value: Value(v)})
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		created = append(created, ev)
	}
	events := NewEvents(f.svc.Resolver, f.repo)

	page, err := events.List(ctx, alice, f.chain, f.device, Range{}, pagination.Options{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Pagination.TotalResults != 4 || page.Pagination.TotalPages != 2 || len(page.Results) != 3 {
		t.Errorf("pagination = %+v, results = %d", page.Pagination, len(page.Results))
	}
	if page.Results[0].Value != "4" {
		t.Errorf("first result = %q, want newest (4)", page.Results[0].Value)
	}

	rng := Range{From: created[1].CreatedAt, To: created[2].CreatedAt}
	page, err = events.List(ctx, alice, f.chain, f.device, rng, pagination.Options{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List(range) error = %v", err)
	}
	if page.Pagination.TotalResults != 2 || page.Results[0].Value != "3" || page.Results[1].Value != "2" {
		t.Errorf("range results = %+v", page.Results)
	}

	if _, err := events.List(ctx, bob, f.chain, f.device, Range{}, pagination.Options{Page: 1, Limit: 10}); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Errorf("List() by other principal error = %v, want ErrNotFound", err)
	}
	if err := events.Resolve(ctx, alice, f.chain[:4], f.device); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Errorf("Resolve() short chain error = %v, want ErrNotFound", err)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2026-03-01", "2026-03-02T10:30:00+01:00")
	if err != nil {
		t.Fatalf("ParseRange() error = %v", err)
	}
	if !r.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || !r.To.Equal(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("range = %+v", r)
	}

	if r, err := ParseRange("", ""); err != nil || !r.From.IsZero() || !r.To.IsZero() {
		t.Errorf("open range = %+v, %v", r, err)
	}
	for _, bad := range [][2]string{{"yesterday", ""}, {"", "03/01/2026"}, {"2026-03-02", "2026-03-01"}} {
		if _, err := ParseRange(bad[0], bad[1]); !errors.Is(err, hierarchy.ErrValidation) {
			t.Errorf("ParseRange(%q, %q) error = %v, want ErrValidation", bad[0], bad[1], err)
		}
	}
}

func TestValueDecoding(t *testing.T) {
	tests := []struct {
		body    string
		want    Value
		wantErr bool
	}{
		{`{"uuid":"u","value":"open"}`, "open", false},
		{`{"uuid":"u","value":21.5}`, "21.5", false},
		{`{"uuid":"u","value":-3}`, "-3", false},
		{`{"uuid":"u","value":true}`, "", true},
		{`{"uuid":"u","value":null}`, "", true},
		{`{"uuid":"u","value":{"x":1}}`, "", true},
	}
	for _, tt := range tests {
		var r Reading
		err := json.Unmarshal([]byte(tt.body), &r)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && r.Value != tt.want {
			t.Errorf("Unmarshal(%s) value = %q, want %q", tt.body, r.Value, tt.want)
		}
	}
}

type fakeWriter struct{ readings []influxdb.Reading }

func (w *fakeWriter) WriteReading(r influxdb.Reading) { w.readings = append(w.readings, r) }

type fakeJSONPublisher struct {
	topic string
	body  []byte
}

func (p *fakeJSONPublisher) PublishJSON(topic string, v any) error {
	p.topic = topic
	b, err := json.Marshal(v)
	p.body = b
	return err
}

func TestSinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stream := redisstream.New(client, "facility:events", 100)
	t.Cleanup(func() { stream.Close() }) //nolint:errcheck // Test cleanup

	writer := &fakeWriter{}
	pub := &fakeJSONPublisher{}
	in := f.ingestor(InfluxSink(writer), StreamSink(stream), MQTTSink(pub))

	ev, err := in.Ingest(ctx, Reading{UUID: "boiler-01", Value: "19"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(writer.readings) != 1 || writer.readings[0].DeviceUUID != "boiler-01" ||
		writer.readings[0].SiteID != f.site || writer.readings[0].Value != "19" {
		t.Errorf("influx readings = %+v", writer.readings)
	}

	msgs, err := client.XRange(ctx, "facility:events", "-", "+").Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("stream = %v, %v", msgs, err)
	}
	if msgs[0].Values["event_id"] != ev.ID || msgs[0].Values["device_uuid"] != "boiler-01" {
		t.Errorf("stream entry = %v", msgs[0].Values)
	}

	if pub.topic != "facility/devices/boiler-01/events" {
		t.Errorf("mqtt topic = %q", pub.topic)
	}
	var published Event
	if err := json.Unmarshal(pub.body, &published); err != nil || published.ID != ev.ID {
		t.Errorf("mqtt payload = %s (%v)", pub.body, err)
	}
}
