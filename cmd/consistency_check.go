package main

import (
	"context"
	"log"
	"time"

	"tamaqBack/internal/repo"
)

const (
	consistencyInterval = 10 * time.Minute
	consistencyTimeout  = 30 * time.Second
)

// startConsistencyCheck periodically verifies that driver assignments and
// order rows agree. Mismatches are logged, not repaired; they point at a
// bug in the assignment path and need a human look.
func startConsistencyCheck(ctx context.Context, drivers *repo.DriversRepo, errorLog *log.Logger) {
	go func() {
		ticker := time.NewTicker(consistencyInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, consistencyTimeout)
				mismatches, err := drivers.CheckAssignmentConsistency(runCtx)
				cancel()
				if err != nil {
					errorLog.Printf("consistency check: %v", err)
					continue
				}
				for _, m := range mismatches {
					errorLog.Printf("assignment mismatch: driver=%d order=%d %s", m.DriverID, m.OrderID, m.Detail)
				}
			}
		}
	}()
}
