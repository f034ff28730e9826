package stations

import (
	"sort"
	"strconv"
	"strings"

	"control-room/gateway/internal/types"
	"control-room/gateway/pkg/utils"
)

// Search limits
const (
	DefaultLimit = 20
	MaxLimit     = 100
	NearbyKm     = 45.0
)

// Score weights
const (
	scoreExactCode  = 200
	scoreCodePrefix = 120
	scoreNameStarts = 80
	scoreNameHas    = 40
)

// ClampLimit parses a limit parameter; default 20, clamped to [1, 100]
func ClampLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Score text relevance of a station for a lower-cased query
// Code and name points are additive.
func Score(st types.StationRecord, q string) int {
	if q == "" {
		return 0
	}
	qUpper := strings.ToUpper(q)
	name := strings.ToLower(st.Name)

	score := 0
	if st.CRS == qUpper {
		score += scoreExactCode
	} else if strings.HasPrefix(st.CRS, qUpper) {
		score += scoreCodePrefix
	}
	if strings.HasPrefix(name, q) {
		score += scoreNameStarts
	}
	if strings.Contains(name, q) {
		score += scoreNameHas
	}
	return score
}

// SearchText scored search; with an empty query returns the first limit records
// Ordered by descending score then ascending name.
func SearchText(records []types.StationRecord, query string, limit int) []types.StationMatch {
	q := strings.ToLower(strings.TrimSpace(query))

	if q == "" {
		n := min(limit, len(records))
		out := make([]types.StationMatch, 0, n)
		for _, st := range records[:n] {
			out = append(out, types.StationMatch{StationRecord: st})
		}
		return out
	}

	type scored struct {
		score int
		st    types.StationRecord
	}
	var hits []scored
	for _, st := range records {
		if s := Score(st, q); s > 0 {
			hits = append(hits, scored{score: s, st: st})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].st.Name < hits[j].st.Name
	})

	out := make([]types.StationMatch, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, types.StationMatch{StationRecord: h.st})
	}
	return out
}

// FindByCode returns the station with the given code
func FindByCode(records []types.StationRecord, crs string) (types.StationRecord, bool) {
	for _, st := range records {
		if st.CRS == crs {
			return st, true
		}
	}
	return types.StationRecord{}, false
}

// SearchNearby stations within 45 km of base, nearest first, base excluded
// Stations without coordinates are skipped; distances are rounded to 2 decimals.
func SearchNearby(records []types.StationRecord, base types.StationRecord, limit int) []types.StationMatch {
	out := []types.StationMatch{}
	if base.Lat == nil || base.Lon == nil {
		return out
	}

	type near struct {
		km float64
		st types.StationRecord
	}
	var hits []near
	for _, st := range records {
		if st.CRS == base.CRS || st.Lat == nil || st.Lon == nil {
			continue
		}
		d := utils.HaversineKm(*base.Lat, *base.Lon, *st.Lat, *st.Lon)
		if d <= NearbyKm {
			hits = append(hits, near{km: d, st: st})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].km < hits[j].km
	})

	for _, h := range hits {
		if len(out) == limit {
			break
		}
		km := utils.RoundTo(h.km, 2)
		out = append(out, types.StationMatch{StationRecord: h.st, DistanceKm: &km})
	}
	return out
}
