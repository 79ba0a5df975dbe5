package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"google.golang.org/api/option"

	"tamaqBack/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	configPath := flag.String("config", "config/config.yaml", "path to yaml config")
	flag.Parse()

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		errorLog.Fatal(err)
	}
	tuning, err := config.LoadFulfillment()
	if err != nil {
		errorLog.Fatal(err)
	}

	db, err := openDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fcm := initMessaging(ctx, cfg.Firebase.CredentialsFile, infoLog, errorLog)

	app := initializeApp(ctx, cfg, tuning, db, fcm, infoLog, errorLog)
	defer app.shutdown()

	go app.coordinator.Run(ctx)
	startOfferWatchdog(ctx, app.coordinator, tuning.DispatchTick, errorLog)
	startConsistencyCheck(ctx, app.drivers, errorLog)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		ErrorLog:     errorLog,
		Handler:      c.Handler(app.routes()),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	infoLog.Printf("Starting server on %s", cfg.Server.Address)
	if err := srv.ListenAndServe(); err != nil {
		errorLog.Fatal(err)
	}
}

// initMessaging builds the FCM client when credentials are configured.
// Push delivery is optional; without credentials only websockets carry
// notifications.
func initMessaging(ctx context.Context, credentialsFile string, infoLog, errorLog *log.Logger) *messaging.Client {
	if credentialsFile == "" {
		infoLog.Printf("firebase credentials not configured, push notifications disabled")
		return nil
	}
	fbApp, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		errorLog.Printf("firebase init: %v", err)
		return nil
	}
	client, err := fbApp.Messaging(ctx)
	if err != nil {
		errorLog.Printf("firebase messaging: %v", err)
		return nil
	}
	return client
}
