package main

import (
	"context"
	"log"
	"time"

	"tamaqBack/internal/dispatch"
)

const offerWatchdogTimeout = 30 * time.Second

// startOfferWatchdog sweeps expired offers on the dispatch tick so an
// unanswered driver never blocks an order past the offer TTL.
func startOfferWatchdog(ctx context.Context, coordinator *dispatch.Coordinator, tick time.Duration, errorLog *log.Logger) {
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, offerWatchdogTimeout)
				coordinator.ExpireOffers(runCtx, time.Now())
				cancel()
			}
		}
	}()
}
