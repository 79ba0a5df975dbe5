// Package dispatch runs the driver-matching loop: for every ready order it
// searches the geo index, reserves the best candidate and proposes the
// order, rolling back and retrying on rejection or expiry. The offer step
// is the highest-contention point in the system; both sides of it are
// single conditional updates, never read-then-write pairs.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tamaqBack/internal/catalog"
	"tamaqBack/internal/geo"
	"tamaqBack/internal/lifecycle"
	"tamaqBack/internal/notify"
	"tamaqBack/internal/repo"
)

// Logger is the pair of printf-style loggers threaded from main.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Config bounds the search loop.
type Config struct {
	Tick           time.Duration
	OfferTTL       time.Duration
	RadiusStepKM   float64
	RadiusMaxKM    float64
	MaxAttempts    int
	CandidateCount int
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		Tick:           5 * time.Second,
		OfferTTL:       45 * time.Second,
		RadiusStepKM:   5,
		RadiusMaxKM:    15,
		MaxAttempts:    10,
		CandidateCount: 3,
	}
}

// OrdersRepository covers the order operations the coordinator needs.
type OrdersRepository interface {
	Get(ctx context.Context, id int64) (repo.Order, error)
	AssignDriver(ctx context.Context, orderID, driverID int64, metadata string) error
	RollbackAssignment(ctx context.Context, orderID, driverID int64, eventType string) error
}

// DispatchRepository persists the per-order search state.
type DispatchRepository interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]repo.DispatchRecord, error)
	Reschedule(ctx context.Context, orderID int64, radiusKM float64, nextTickAt time.Time) error
	MarkOffered(ctx context.Context, orderID int64) error
	Resume(ctx context.Context, orderID int64) error
	Finish(ctx context.Context, orderID int64) error
	MarkExhausted(ctx context.Context, orderID int64) error
}

// OffersRepository records proposals and the exclusion set.
type OffersRepository interface {
	Create(ctx context.Context, orderID, driverID int64, ttlAt time.Time) error
	Resolve(ctx context.Context, orderID, driverID int64, state string) error
	ExcludedDriverIDs(ctx context.Context, orderID int64) (map[int64]struct{}, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]repo.Offer, error)
}

// DriverPool reserves and releases drivers.
type DriverPool interface {
	Get(ctx context.Context, id int64) (repo.Driver, error)
	Reserve(ctx context.Context, driverID, orderID int64) error
	Release(ctx context.Context, driverID, orderID int64) error
}

// Finder is the proximity search.
type Finder interface {
	Nearest(ctx context.Context, city string, lon, lat float64, k int, exclude map[int64]struct{}) ([]geo.Candidate, error)
}

// Menu resolves the pickup point.
type Menu interface {
	BranchInfo(ctx context.Context, branchID int64) (catalog.Branch, error)
}

// GeoIndex moves drivers between the free and busy sets.
type GeoIndex interface {
	MoveDriver(ctx context.Context, city string, driverID int64, toBusy bool) error
}

// Auditor appends standalone audit events.
type Auditor interface {
	RecordSystemEvent(ctx context.Context, orderID int64, eventType, metadata string) error
}

// Publisher fans updates out.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte)
}

// Coordinator is the dispatcher loop.
type Coordinator struct {
	cfg      Config
	orders   OrdersRepository
	dispatch DispatchRepository
	offers   OffersRepository
	pool     DriverPool
	finder   Finder
	menu     Menu
	geoIndex GeoIndex
	audit    Auditor
	pub      Publisher
	log      Logger
}

// Deps bundles the coordinator collaborators.
type Deps struct {
	Orders   OrdersRepository
	Dispatch DispatchRepository
	Offers   OffersRepository
	Pool     DriverPool
	Finder   Finder
	Menu     Menu
	GeoIndex GeoIndex
	Audit    Auditor
	Pub      Publisher
	Log      Logger
}

func New(cfg Config, d Deps) *Coordinator {
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = 3
	}
	return &Coordinator{
		cfg:      cfg,
		orders:   d.Orders,
		dispatch: d.Dispatch,
		offers:   d.Offers,
		pool:     d.Pool,
		finder:   d.Finder,
		menu:     d.Menu,
		geoIndex: d.GeoIndex,
		audit:    d.Audit,
		pub:      d.Pub,
		log:      d.Log,
	}
}

// Run drives the loop until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx, time.Now())
		}
	}
}

// Tick processes every due dispatch record once.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) {
	records, err := c.dispatch.ListDue(ctx, now, 100)
	if err != nil {
		c.log.Errorf("dispatch: list due: %v", err)
		return
	}
	for _, rec := range records {
		if err := c.processRecord(ctx, rec, now); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Errorf("dispatch: order %d: %v", rec.OrderID, err)
		}
	}
}

func (c *Coordinator) processRecord(ctx context.Context, rec repo.DispatchRecord, now time.Time) error {
	order, err := c.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return err
	}
	// cancelled, or assigned through some other path: stop searching
	if order.Status != lifecycle.StatusReady {
		c.log.Infof("dispatch: order %d left ready (status=%s), finishing", rec.OrderID, order.Status)
		return c.dispatch.Finish(ctx, rec.OrderID)
	}

	branch, err := c.menu.BranchInfo(ctx, order.BranchID)
	if err != nil {
		return err
	}

	exclude, err := c.offers.ExcludedDriverIDs(ctx, rec.OrderID)
	if err != nil {
		return err
	}

	candidates, err := c.finder.Nearest(ctx, branch.City, branch.Lon, branch.Lat, c.cfg.CandidateCount, exclude)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return c.noCandidates(ctx, rec, order, now)
	}

	meta := candidateMetadata(candidates)
	for _, cand := range candidates {
		if err := c.pool.Reserve(ctx, cand.DriverID, rec.OrderID); err != nil {
			if errors.Is(err, repo.ErrDriverUnavailable) {
				continue
			}
			return err
		}

		if err := c.orders.AssignDriver(ctx, rec.OrderID, cand.DriverID, meta); err != nil {
			if relErr := c.pool.Release(ctx, cand.DriverID, rec.OrderID); relErr != nil {
				c.log.Errorf("dispatch: release driver %d: %v", cand.DriverID, relErr)
			}
			if errors.Is(err, lifecycle.ErrConflictingState) {
				// order moved under us; another worker or a cancellation won
				c.log.Infof("dispatch: order %d no longer assignable, finishing", rec.OrderID)
				return c.dispatch.Finish(ctx, rec.OrderID)
			}
			return err
		}

		ttlAt := now.Add(c.cfg.OfferTTL)
		if err := c.offers.Create(ctx, rec.OrderID, cand.DriverID, ttlAt); err != nil {
			return err
		}
		if err := c.dispatch.MarkOffered(ctx, rec.OrderID); err != nil {
			return err
		}

		c.publishOffer(ctx, order, cand, ttlAt)
		c.log.Infof("dispatch: order %d offered to driver %d (%.2f km)", rec.OrderID, cand.DriverID, cand.DistanceKM)
		return nil
	}

	// every candidate lost the reserve race to another order
	return c.noCandidates(ctx, rec, order, now)
}

// noCandidates grows the radius and backs off, or gives up once the retry
// budget is spent. The order itself stays ready either way.
func (c *Coordinator) noCandidates(ctx context.Context, rec repo.DispatchRecord, order repo.Order, now time.Time) error {
	if rec.Attempt+1 >= c.cfg.MaxAttempts {
		if err := c.audit.RecordSystemEvent(ctx, rec.OrderID, repo.EventNoDrivers, fmt.Sprintf(`{"attempts":%d}`, rec.Attempt+1)); err != nil {
			c.log.Errorf("dispatch: record no-drivers event %d: %v", rec.OrderID, err)
		}
		c.publish(ctx, notify.BranchTopic(order.BranchID), map[string]any{
			"type":     "no_drivers_available",
			"order_id": rec.OrderID,
		})
		c.publish(ctx, notify.CustomerTopic(order.CustomerID), map[string]any{
			"type":     "driver_search_delayed",
			"order_id": rec.OrderID,
		})
		return c.dispatch.MarkExhausted(ctx, rec.OrderID)
	}

	radius := rec.RadiusKM + c.cfg.RadiusStepKM
	if radius > c.cfg.RadiusMaxKM {
		radius = c.cfg.RadiusMaxKM
	}
	return c.dispatch.Reschedule(ctx, rec.OrderID, radius, now.Add(c.cfg.Tick))
}

// ExpireOffers rolls back proposals whose deadline passed: resolve the
// offer, undo the assignment, free the driver, and queue the order for an
// immediate re-dispatch. An accept racing the expiry wins whichever CAS
// lands first.
func (c *Coordinator) ExpireOffers(ctx context.Context, now time.Time) {
	expired, err := c.offers.ListExpired(ctx, now, 100)
	if err != nil {
		c.log.Errorf("dispatch: list expired offers: %v", err)
		return
	}
	for _, offer := range expired {
		if err := c.offers.Resolve(ctx, offer.OrderID, offer.DriverID, repo.OfferExpired); err != nil {
			// already accepted or rejected
			continue
		}
		if err := c.orders.RollbackAssignment(ctx, offer.OrderID, offer.DriverID, repo.EventOfferExpired); err != nil {
			if !errors.Is(err, lifecycle.ErrConflictingState) {
				c.log.Errorf("dispatch: rollback order %d: %v", offer.OrderID, err)
			}
			continue
		}
		if err := c.pool.Release(ctx, offer.DriverID, offer.OrderID); err != nil {
			c.log.Errorf("dispatch: release driver %d: %v", offer.DriverID, err)
		}
		if driver, err := c.pool.Get(ctx, offer.DriverID); err == nil {
			if moveErr := c.geoIndex.MoveDriver(ctx, driver.City, offer.DriverID, false); moveErr != nil {
				c.log.Errorf("dispatch: move driver %d free: %v", offer.DriverID, moveErr)
			}
		}
		if err := c.dispatch.Resume(ctx, offer.OrderID); err != nil {
			c.log.Errorf("dispatch: resume order %d: %v", offer.OrderID, err)
		}
		c.log.Infof("dispatch: offer order %d driver %d expired", offer.OrderID, offer.DriverID)
	}
}

func (c *Coordinator) publishOffer(ctx context.Context, order repo.Order, cand geo.Candidate, ttlAt time.Time) {
	c.publish(ctx, notify.DriverTopic(cand.DriverID), map[string]any{
		"type":        "order_offer",
		"order_id":    order.ID,
		"number":      order.OrderNumber,
		"address":     order.Address,
		"distance_km": cand.DistanceKM,
		"expires_at":  ttlAt.Unix(),
	})
}

func (c *Coordinator) publish(ctx context.Context, topic string, fields map[string]any) {
	payload, err := json.Marshal(fields)
	if err != nil {
		c.log.Errorf("dispatch: marshal: %v", err)
		return
	}
	c.pub.Publish(ctx, topic, payload)
}

func candidateMetadata(cands []geo.Candidate) string {
	type entry struct {
		DriverID   int64   `json:"driver_id"`
		DistanceKM float64 `json:"distance_km"`
		Score      float64 `json:"score"`
	}
	entries := make([]entry, len(cands))
	for i, c := range cands {
		entries[i] = entry{DriverID: c.DriverID, DistanceKM: c.DistanceKM, Score: c.Score}
	}
	out, err := json.Marshal(map[string]any{"candidates": entries})
	if err != nil {
		return "{}"
	}
	return string(out)
}
