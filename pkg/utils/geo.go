package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// EarthRadiusKm mean Earth radius used for great-circle distances
const EarthRadiusKm = 6371.0

// HaversineKm great-circle distance between two points in kilometres
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert coordinates to radians
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// RoundTo rounds a float to the given number of decimal places
func RoundTo(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}
