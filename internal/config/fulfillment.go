package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultDispatchTick     = 5 * time.Second
	defaultOfferTTL         = 45 * time.Second
	defaultConfirmTimeout   = 10 * time.Minute
	defaultPaymentTimeout   = 30 * time.Minute
	defaultRadiusStartKM    = 5.0
	defaultRadiusStepKM     = 5.0
	defaultRadiusMaxKM      = 15.0
	defaultDispatchAttempts = 10
	defaultCandidateCount   = 3
	defaultStalenessMinutes = 5
	defaultToleranceKM      = 0.7
	defaultRatingWeight     = 0.5
	defaultMinTrustCount    = 10
)

// Fulfillment holds the dispatch and lifecycle tuning, read from the
// environment with defaults.
type Fulfillment struct {
	DispatchTick     time.Duration
	OfferTTL         time.Duration
	ConfirmTimeout   time.Duration
	PaymentTimeout   time.Duration
	RadiusStartKM    float64
	RadiusStepKM     float64
	RadiusMaxKM      float64
	DispatchAttempts int
	CandidateCount   int
	Staleness        time.Duration
	ToleranceKM      float64
	RatingWeight     float64
	MinTrustCount    int64
}

// LoadFulfillment reads the tuning from environment variables and
// validates the result.
func LoadFulfillment() (Fulfillment, error) {
	cfg := Fulfillment{
		DispatchTick:     defaultDispatchTick,
		OfferTTL:         defaultOfferTTL,
		ConfirmTimeout:   defaultConfirmTimeout,
		PaymentTimeout:   defaultPaymentTimeout,
		RadiusStartKM:    defaultRadiusStartKM,
		RadiusStepKM:     defaultRadiusStepKM,
		RadiusMaxKM:      defaultRadiusMaxKM,
		DispatchAttempts: defaultDispatchAttempts,
		CandidateCount:   defaultCandidateCount,
		Staleness:        defaultStalenessMinutes * time.Minute,
		ToleranceKM:      defaultToleranceKM,
		RatingWeight:     defaultRatingWeight,
		MinTrustCount:    defaultMinTrustCount,
	}

	if err := readSeconds("DISPATCH_TICK_SECONDS", &cfg.DispatchTick); err != nil {
		return Fulfillment{}, err
	}
	if err := readSeconds("OFFER_TTL_SECONDS", &cfg.OfferTTL); err != nil {
		return Fulfillment{}, err
	}
	if err := readSeconds("CONFIRM_TIMEOUT_SECONDS", &cfg.ConfirmTimeout); err != nil {
		return Fulfillment{}, err
	}
	if err := readSeconds("PAYMENT_TIMEOUT_SECONDS", &cfg.PaymentTimeout); err != nil {
		return Fulfillment{}, err
	}
	if err := readSeconds("GEO_STALENESS_SECONDS", &cfg.Staleness); err != nil {
		return Fulfillment{}, err
	}
	if err := readFloat("DISPATCH_RADIUS_START_KM", &cfg.RadiusStartKM); err != nil {
		return Fulfillment{}, err
	}
	if err := readFloat("DISPATCH_RADIUS_STEP_KM", &cfg.RadiusStepKM); err != nil {
		return Fulfillment{}, err
	}
	if err := readFloat("DISPATCH_RADIUS_MAX_KM", &cfg.RadiusMaxKM); err != nil {
		return Fulfillment{}, err
	}
	if err := readFloat("GEO_TOLERANCE_KM", &cfg.ToleranceKM); err != nil {
		return Fulfillment{}, err
	}
	if err := readFloat("GEO_RATING_WEIGHT", &cfg.RatingWeight); err != nil {
		return Fulfillment{}, err
	}
	if err := readInt("DISPATCH_MAX_ATTEMPTS", &cfg.DispatchAttempts); err != nil {
		return Fulfillment{}, err
	}
	if err := readInt("DISPATCH_CANDIDATES", &cfg.CandidateCount); err != nil {
		return Fulfillment{}, err
	}
	if v := os.Getenv("GEO_MIN_TRUST_COUNT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Fulfillment{}, fmt.Errorf("parse GEO_MIN_TRUST_COUNT: %w", err)
		}
		cfg.MinTrustCount = n
	}

	if cfg.RadiusStartKM <= 0 || cfg.RadiusStepKM <= 0 || cfg.RadiusMaxKM < cfg.RadiusStartKM {
		return Fulfillment{}, fmt.Errorf("invalid dispatch radius configuration")
	}
	if cfg.DispatchAttempts <= 0 || cfg.CandidateCount <= 0 {
		return Fulfillment{}, fmt.Errorf("dispatch attempts and candidates must be positive")
	}
	return cfg, nil
}

// Radii expands the start/step/max triple into the ascending sequence the
// geo reader consumes.
func (f Fulfillment) Radii() []float64 {
	var out []float64
	for r := f.RadiusStartKM; r <= f.RadiusMaxKM; r += f.RadiusStepKM {
		out = append(out, r)
	}
	return out
}

func readSeconds(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = time.Duration(secs) * time.Second
	return nil
}

func readInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func readFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = f
	return nil
}
