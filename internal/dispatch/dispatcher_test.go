package dispatch

import (
	"context"
	"testing"
	"time"

	"tamaqBack/internal/catalog"
	"tamaqBack/internal/geo"
	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/repo"
)

type testLogger struct{}

func (testLogger) Infof(string, ...any)  {}
func (testLogger) Errorf(string, ...any) {}

type stubOrders struct {
	order       repo.Order
	assigned    []int64
	assignErr   error
	rolledBack  []int64
	rollbackErr error
}

func (s *stubOrders) Get(ctx context.Context, id int64) (repo.Order, error) {
	return s.order, nil
}

func (s *stubOrders) AssignDriver(ctx context.Context, orderID, driverID int64, metadata string) error {
	if s.assignErr != nil {
		return s.assignErr
	}
	s.assigned = append(s.assigned, driverID)
	return nil
}

func (s *stubOrders) RollbackAssignment(ctx context.Context, orderID, driverID int64, eventType string) error {
	if s.rollbackErr != nil {
		return s.rollbackErr
	}
	s.rolledBack = append(s.rolledBack, driverID)
	return nil
}

type stubDispatch struct {
	rescheduled bool
	radius      float64
	offered     bool
	resumed     bool
	finished    bool
	exhausted   bool
}

func (s *stubDispatch) ListDue(ctx context.Context, now time.Time, limit int) ([]repo.DispatchRecord, error) {
	return nil, nil
}

func (s *stubDispatch) Reschedule(ctx context.Context, orderID int64, radiusKM float64, nextTickAt time.Time) error {
	s.rescheduled = true
	s.radius = radiusKM
	return nil
}

func (s *stubDispatch) MarkOffered(ctx context.Context, orderID int64) error {
	s.offered = true
	return nil
}

func (s *stubDispatch) Resume(ctx context.Context, orderID int64) error {
	s.resumed = true
	return nil
}

func (s *stubDispatch) Finish(ctx context.Context, orderID int64) error {
	s.finished = true
	return nil
}

func (s *stubDispatch) MarkExhausted(ctx context.Context, orderID int64) error {
	s.exhausted = true
	return nil
}

type stubOffers struct {
	created    []int64
	expired    []repo.Offer
	resolveErr error
	resolved   []string
}

func (s *stubOffers) Create(ctx context.Context, orderID, driverID int64, ttlAt time.Time) error {
	s.created = append(s.created, driverID)
	return nil
}

func (s *stubOffers) Resolve(ctx context.Context, orderID, driverID int64, state string) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.resolved = append(s.resolved, state)
	return nil
}

func (s *stubOffers) ExcludedDriverIDs(ctx context.Context, orderID int64) (map[int64]struct{}, error) {
	return map[int64]struct{}{}, nil
}

func (s *stubOffers) ListExpired(ctx context.Context, now time.Time, limit int) ([]repo.Offer, error) {
	return s.expired, nil
}

type stubPool struct {
	busy     map[int64]bool
	reserved []int64
	released []int64
}

func (s *stubPool) Get(ctx context.Context, id int64) (repo.Driver, error) {
	return repo.Driver{ID: id, City: "almaty"}, nil
}

func (s *stubPool) Reserve(ctx context.Context, driverID, orderID int64) error {
	if s.busy[driverID] {
		return repo.ErrDriverUnavailable
	}
	s.reserved = append(s.reserved, driverID)
	return nil
}

func (s *stubPool) Release(ctx context.Context, driverID, orderID int64) error {
	s.released = append(s.released, driverID)
	return nil
}

type stubFinder struct {
	candidates []geo.Candidate
}

func (s *stubFinder) Nearest(ctx context.Context, city string, lon, lat float64, k int, exclude map[int64]struct{}) ([]geo.Candidate, error) {
	return s.candidates, nil
}

type stubMenu struct{}

func (stubMenu) BranchInfo(ctx context.Context, branchID int64) (catalog.Branch, error) {
	return catalog.Branch{ID: branchID, City: "almaty", Lon: 76.9, Lat: 43.2}, nil
}

type stubGeoIndex struct {
	moves int
}

func (s *stubGeoIndex) MoveDriver(ctx context.Context, city string, driverID int64, toBusy bool) error {
	s.moves++
	return nil
}

type stubAudit struct {
	events []string
}

func (s *stubAudit) RecordSystemEvent(ctx context.Context, orderID int64, eventType, metadata string) error {
	s.events = append(s.events, eventType)
	return nil
}

type stubPub struct {
	topics []string
}

func (s *stubPub) Publish(ctx context.Context, topic string, payload []byte) {
	s.topics = append(s.topics, topic)
}

type fixture struct {
	orders   *stubOrders
	dispatch *stubDispatch
	offers   *stubOffers
	pool     *stubPool
	finder   *stubFinder
	geoIndex *stubGeoIndex
	audit    *stubAudit
	pub      *stubPub
	c        *Coordinator
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		orders:   &stubOrders{order: repo.Order{ID: 1, CustomerID: 10, BranchID: 5, Status: lifecycle.StatusReady}},
		dispatch: &stubDispatch{},
		offers:   &stubOffers{},
		pool:     &stubPool{busy: map[int64]bool{}},
		finder:   &stubFinder{},
		geoIndex: &stubGeoIndex{},
		audit:    &stubAudit{},
		pub:      &stubPub{},
	}
	f.c = New(cfg, Deps{
		Orders:   f.orders,
		Dispatch: f.dispatch,
		Offers:   f.offers,
		Pool:     f.pool,
		Finder:   f.finder,
		Menu:     stubMenu{},
		GeoIndex: f.geoIndex,
		Audit:    f.audit,
		Pub:      f.pub,
		Log:      testLogger{},
	})
	return f
}

func TestProcessRecordOffersBestCandidate(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.finder.candidates = []geo.Candidate{
		{DriverID: 21, DistanceKM: 1.1, Score: 1.1},
		{DriverID: 22, DistanceKM: 2.0, Score: 2.0},
	}

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 5}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if len(f.orders.assigned) != 1 || f.orders.assigned[0] != 21 {
		t.Fatalf("assigned = %v, want [21]", f.orders.assigned)
	}
	if len(f.offers.created) != 1 || f.offers.created[0] != 21 {
		t.Fatalf("offers created = %v, want [21]", f.offers.created)
	}
	if !f.dispatch.offered {
		t.Fatal("dispatch record must be marked offered")
	}
}

func TestProcessRecordSkipsReservedDriver(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.finder.candidates = []geo.Candidate{
		{DriverID: 21, DistanceKM: 1.1},
		{DriverID: 22, DistanceKM: 2.0},
	}
	f.pool.busy[21] = true

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 5}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if len(f.orders.assigned) != 1 || f.orders.assigned[0] != 22 {
		t.Fatalf("assigned = %v, want [22]", f.orders.assigned)
	}
}

func TestProcessRecordExpandsRadius(t *testing.T) {
	cfg := DefaultConfig()
	f := newFixture(cfg)

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 5, Attempt: 0}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if !f.dispatch.rescheduled {
		t.Fatal("expected a reschedule with no candidates")
	}
	if f.dispatch.radius != 10 {
		t.Fatalf("radius = %v, want 10", f.dispatch.radius)
	}
}

func TestProcessRecordRadiusClampsAtMax(t *testing.T) {
	f := newFixture(DefaultConfig())

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 15, Attempt: 3}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if f.dispatch.radius != 15 {
		t.Fatalf("radius = %v, want clamp at 15", f.dispatch.radius)
	}
}

func TestProcessRecordExhaustsAfterMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	f := newFixture(cfg)

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 15, Attempt: 2}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if !f.dispatch.exhausted {
		t.Fatal("expected the record to be exhausted")
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != repo.EventNoDrivers {
		t.Fatalf("audit events = %v, want [%s]", f.audit.events, repo.EventNoDrivers)
	}
	if len(f.pub.topics) != 2 {
		t.Fatalf("expected branch and customer notifications, got %v", f.pub.topics)
	}
}

func TestProcessRecordFinishesWhenOrderLeftReady(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.orders.order.Status = lifecycle.StatusCancelled

	rec := repo.DispatchRecord{OrderID: 1}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if !f.dispatch.finished {
		t.Fatal("expected the record to be finished")
	}
}

func TestProcessRecordReleasesDriverOnAssignConflict(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.finder.candidates = []geo.Candidate{{DriverID: 21, DistanceKM: 1.1}}
	f.orders.assignErr = lifecycle.ErrConflictingState

	rec := repo.DispatchRecord{OrderID: 1, RadiusKM: 5}
	if err := f.c.processRecord(context.Background(), rec, time.Now()); err != nil {
		t.Fatalf("processRecord: %v", err)
	}
	if len(f.pool.released) != 1 || f.pool.released[0] != 21 {
		t.Fatalf("released = %v, want [21]", f.pool.released)
	}
	if !f.dispatch.finished {
		t.Fatal("conflicting assignment must finish the record")
	}
}

func TestExpireOffersRollsBackAndResumes(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.offers.expired = []repo.Offer{{OrderID: 1, DriverID: 21}}

	f.c.ExpireOffers(context.Background(), time.Now())

	if len(f.offers.resolved) != 1 || f.offers.resolved[0] != repo.OfferExpired {
		t.Fatalf("resolved = %v, want [%s]", f.offers.resolved, repo.OfferExpired)
	}
	if len(f.orders.rolledBack) != 1 || f.orders.rolledBack[0] != 21 {
		t.Fatalf("rolledBack = %v, want [21]", f.orders.rolledBack)
	}
	if len(f.pool.released) != 1 {
		t.Fatalf("released = %v, want one driver", f.pool.released)
	}
	if f.geoIndex.moves != 1 {
		t.Fatal("driver must move back to the free set")
	}
	if !f.dispatch.resumed {
		t.Fatal("dispatch must resume after an expiry")
	}
}

func TestExpireOffersSkipsResolvedOffers(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.offers.expired = []repo.Offer{{OrderID: 1, DriverID: 21}}
	f.offers.resolveErr = repo.ErrNotFound

	f.c.ExpireOffers(context.Background(), time.Now())

	if len(f.orders.rolledBack) != 0 {
		t.Fatal("an already-resolved offer must not roll anything back")
	}
	if f.dispatch.resumed {
		t.Fatal("dispatch must not resume for a raced offer")
	}
}

func TestExpireOffersSkipsMovedOrders(t *testing.T) {
	f := newFixture(DefaultConfig())
	f.offers.expired = []repo.Offer{{OrderID: 1, DriverID: 21}}
	f.orders.rollbackErr = lifecycle.ErrConflictingState

	f.c.ExpireOffers(context.Background(), time.Now())

	if len(f.pool.released) != 0 {
		t.Fatal("a conflicting rollback must not release the driver")
	}
	if f.dispatch.resumed {
		t.Fatal("dispatch must not resume when the order moved on")
	}
}

func TestTickSurvivesListError(t *testing.T) {
	f := newFixture(DefaultConfig())
	// ListDue returning nothing must be a quiet no-op
	f.c.Tick(context.Background(), time.Now())
	if f.dispatch.rescheduled || f.dispatch.finished {
		t.Fatal("empty tick must not touch any record")
	}
}
