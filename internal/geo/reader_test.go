package geo

import "testing"

func TestRerankRatingBreaksTiesInsideWindow(t *testing.T) {
	cands := []Candidate{
		{DriverID: 1, DistanceKM: 1.0, AvgRating: 3.0, RatingCount: 50},
		{DriverID: 2, DistanceKM: 1.3, AvgRating: 4.9, RatingCount: 50},
		{DriverID: 3, DistanceKM: 1.5, AvgRating: 5.0, RatingCount: 50},
	}
	got := Rerank(cands, 2, 0.7, 0.5, 10)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	// driver 2: 1.3 + (5-4.9)*0.5 = 1.35 beats driver 1: 1.0 + (5-3)*0.5 = 2.0
	if got[0].DriverID != 2 {
		t.Fatalf("got driver %d first, want 2", got[0].DriverID)
	}
}

func TestRerankWindowBoundsTheTrade(t *testing.T) {
	// driver 9 has a perfect rating but sits past the tolerance window,
	// so it must never displace anyone inside it
	cands := []Candidate{
		{DriverID: 1, DistanceKM: 1.0, AvgRating: 3.0, RatingCount: 50},
		{DriverID: 2, DistanceKM: 1.2, AvgRating: 3.5, RatingCount: 50},
		{DriverID: 9, DistanceKM: 3.0, AvgRating: 5.0, RatingCount: 500},
	}
	got := Rerank(cands, 2, 0.7, 0.5, 10)
	for _, c := range got {
		if c.DriverID == 9 {
			t.Fatal("candidate outside the window must not be selected")
		}
	}
}

func TestRerankLowTrustGetsNoPenalty(t *testing.T) {
	cands := []Candidate{
		{DriverID: 1, DistanceKM: 1.0, AvgRating: 1.0, RatingCount: 3},
		{DriverID: 2, DistanceKM: 1.1, AvgRating: 5.0, RatingCount: 100},
	}
	got := Rerank(cands, 1, 0.7, 0.5, 10)
	// driver 1 has too few ratings to be penalized, distance decides
	if got[0].DriverID != 1 {
		t.Fatalf("got driver %d, want 1", got[0].DriverID)
	}
}

func TestRerankSmallWindowFallsBackToNearest(t *testing.T) {
	cands := []Candidate{
		{DriverID: 1, DistanceKM: 1.0, AvgRating: 2.0, RatingCount: 50},
		{DriverID: 2, DistanceKM: 5.0, AvgRating: 5.0, RatingCount: 50},
		{DriverID: 3, DistanceKM: 9.0, AvgRating: 5.0, RatingCount: 50},
	}
	got := Rerank(cands, 2, 0.7, 0.5, 10)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].DriverID != 1 || got[1].DriverID != 2 {
		t.Fatalf("got drivers %d,%d, want nearest 1,2", got[0].DriverID, got[1].DriverID)
	}
	if got[0].Score != got[0].DistanceKM {
		t.Fatal("fallback scores must equal distance")
	}
}

func TestRerankEmptyAndZeroK(t *testing.T) {
	if got := Rerank(nil, 3, 0.7, 0.5, 10); got != nil {
		t.Fatal("expected nil for empty input")
	}
	if got := Rerank([]Candidate{{DriverID: 1}}, 0, 0.7, 0.5, 10); got != nil {
		t.Fatal("expected nil for k=0")
	}
}
