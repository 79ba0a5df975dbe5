package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"firebase.google.com/go/messaging"
	"github.com/redis/go-redis/v9"

	"tamaqBack/internal/catalog"
	"tamaqBack/internal/config"
	"tamaqBack/internal/dispatch"
	"tamaqBack/internal/geo"
	httpapi "tamaqBack/internal/http"
	"tamaqBack/internal/notify"
	"tamaqBack/internal/orders"
	"tamaqBack/internal/pay"
	"tamaqBack/internal/repo"
	"tamaqBack/internal/sched"
	"tamaqBack/internal/ws"
)

const schedulerRunTimeout = 15 * time.Second

type application struct {
	errorLog    *log.Logger
	infoLog     *log.Logger
	jwtSecret   string
	server      *httpapi.Server
	service     *orders.Service
	coordinator *dispatch.Coordinator
	scheduler   *sched.Scheduler
	drivers     *repo.DriversRepo
	rdb         *redis.Client
}

// appLogger adapts the stdlib logger pair to the Infof/Errorf interface
// the services expect.
type appLogger struct {
	info *log.Logger
	err  *log.Logger
}

func (l appLogger) Infof(format string, args ...any)  { l.info.Printf(format, args...) }
func (l appLogger) Errorf(format string, args ...any) { l.err.Printf(format, args...) }

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func initializeApp(ctx context.Context, cfg config.Config, tuning config.Fulfillment, db *sql.DB, fcm *messaging.Client, infoLog, errorLog *log.Logger) *application {
	logger := appLogger{info: infoLog, err: errorLog}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		errorLog.Fatal(err)
	}

	ordersRepo := repo.NewOrdersRepo(db)
	eventsRepo := repo.NewEventsRepo(db)
	couponsRepo := repo.NewCouponsRepo(db, 5)
	driversRepo := repo.NewDriversRepo(db)
	dispatchRepo := repo.NewDispatchRepo(db)
	offersRepo := repo.NewOffersRepo(db)
	menu := catalog.NewSource(db)

	locator := geo.NewLocator(rdb)
	finder := geo.NewReader(locator, driversRepo, geo.Config{
		RadiiKM:       tuning.Radii(),
		Staleness:     tuning.Staleness,
		Overfetch:     3,
		ToleranceKM:   tuning.ToleranceKM,
		RatingWeight:  tuning.RatingWeight,
		MinTrustCount: tuning.MinTrustCount,
	})

	hubs := ws.NewHubs(logger)
	publishers := notify.Fanout{hubs}
	if fcm != nil {
		publishers = append(publishers, notify.NewFCMPusher(fcm, db, logger))
	}

	gateway := pay.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Paystack.Secret)
	scheduler := sched.New(schedulerRunTimeout, logger)

	service := orders.NewService(orders.Config{
		ConfirmTimeout: tuning.ConfirmTimeout,
		PaymentTimeout: tuning.PaymentTimeout,
		StartRadiusKM:  tuning.RadiusStartKM,
		NumberAttempts: 5,
	}, orders.Deps{
		Ledger:   ordersRepo,
		Coupons:  couponsRepo,
		Menu:     menu,
		Gateway:  gateway,
		Drivers:  driversRepo,
		Offers:   offersRepo,
		Dispatch: dispatchRepo,
		GeoIndex: locator,
		Audit:    eventsRepo,
		Sched:    scheduler,
		Pub:      publishers,
		Log:      logger,
	})

	coordinator := dispatch.New(dispatch.Config{
		Tick:           tuning.DispatchTick,
		OfferTTL:       tuning.OfferTTL,
		RadiusStepKM:   tuning.RadiusStepKM,
		RadiusMaxKM:    tuning.RadiusMaxKM,
		MaxAttempts:    tuning.DispatchAttempts,
		CandidateCount: tuning.CandidateCount,
	}, dispatch.Deps{
		Orders:   ordersRepo,
		Dispatch: dispatchRepo,
		Offers:   offersRepo,
		Pool:     driversRepo,
		Finder:   finder,
		Menu:     menu,
		GeoIndex: locator,
		Audit:    eventsRepo,
		Pub:      publishers,
		Log:      logger,
	})

	server := httpapi.NewServer(service, eventsRepo, couponsRepo, hubs, gateway.Secret(), logger)

	return &application{
		errorLog:    errorLog,
		infoLog:     infoLog,
		jwtSecret:   cfg.JWT.Secret,
		server:      server,
		service:     service,
		coordinator: coordinator,
		scheduler:   scheduler,
		drivers:     driversRepo,
		rdb:         rdb,
	}
}

func (app *application) shutdown() {
	app.scheduler.Stop()
	if err := app.rdb.Close(); err != nil {
		app.errorLog.Printf("redis close: %v", err)
	}
}
