// Package geo reads the live driver location index: Redis GEO sets per
// city, split into free and busy members, with a last-seen hash for
// staleness filtering.
package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Candidate is one driver found near a pickup point.
type Candidate struct {
	DriverID    int64
	DistanceKM  float64
	AvgRating   float64
	RatingCount int64
	Score       float64
}

// Locator owns the Redis keys. Members are decimal driver ids.
type Locator struct {
	rdb *redis.Client
}

func NewLocator(rdb *redis.Client) *Locator {
	return &Locator{rdb: rdb}
}

func freeKey(city string) string     { return "drivers:" + city + ":free" }
func busyKey(city string) string     { return "drivers:" + city + ":busy" }
func lastSeenKey(city string) string { return "drivers:" + city + ":seen" }

func member(driverID int64) string { return strconv.FormatInt(driverID, 10) }

// UpdateLocation stores a heartbeat coordinate into the driver's current
// set and refreshes the last-seen timestamp.
func (l *Locator) UpdateLocation(ctx context.Context, city string, driverID int64, lon, lat float64, busy bool) error {
	key := freeKey(city)
	if busy {
		key = busyKey(city)
	}
	pipe := l.rdb.Pipeline()
	pipe.GeoAdd(ctx, key, &redis.GeoLocation{Name: member(driverID), Longitude: lon, Latitude: lat})
	pipe.HSet(ctx, lastSeenKey(city), member(driverID), time.Now().Unix())
	_, err := pipe.Exec(ctx)
	return err
}

// MoveDriver shifts a driver between the free and busy sets, keeping the
// last known coordinate. A driver with no coordinate yet is a no-op; the
// next heartbeat lands in the right set.
func (l *Locator) MoveDriver(ctx context.Context, city string, driverID int64, toBusy bool) error {
	src, dst := freeKey(city), busyKey(city)
	if !toBusy {
		src, dst = dst, src
	}
	pos, err := l.rdb.GeoPos(ctx, src, member(driverID)).Result()
	if err != nil {
		return err
	}
	if len(pos) == 0 || pos[0] == nil {
		return nil
	}
	pipe := l.rdb.Pipeline()
	pipe.GeoAdd(ctx, dst, &redis.GeoLocation{Name: member(driverID), Longitude: pos[0].Longitude, Latitude: pos[0].Latitude})
	pipe.ZRem(ctx, src, member(driverID))
	_, err = pipe.Exec(ctx)
	return err
}

// Remove drops the driver from the index entirely (went offline).
func (l *Locator) Remove(ctx context.Context, city string, driverID int64) error {
	pipe := l.rdb.Pipeline()
	pipe.ZRem(ctx, freeKey(city), member(driverID))
	pipe.ZRem(ctx, busyKey(city), member(driverID))
	pipe.HDel(ctx, lastSeenKey(city), member(driverID))
	_, err := pipe.Exec(ctx)
	return err
}

// SearchFree returns free drivers within radiusKM of the point, closest
// first, up to count.
func (l *Locator) SearchFree(ctx context.Context, city string, lon, lat, radiusKM float64, count int) ([]Candidate, error) {
	locs, err := l.rdb.GeoSearchLocation(ctx, freeKey(city), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      count,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		id, convErr := strconv.ParseInt(loc.Name, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("bad geo member %q: %w", loc.Name, convErr)
		}
		out = append(out, Candidate{DriverID: id, DistanceKM: loc.Dist})
	}
	return out, nil
}

// LastSeen returns heartbeat timestamps for the given drivers. Missing
// members are absent from the map.
func (l *Locator) LastSeen(ctx context.Context, city string, ids []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = member(id)
	}
	vals, err := l.rdb.HMGet(ctx, lastSeenKey(city), fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		unix, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			continue
		}
		out[ids[i]] = time.Unix(unix, 0)
	}
	return out, nil
}
