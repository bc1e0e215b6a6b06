package places

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusMeters = 6371000.0

// haversineMeters calculates the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// parseLatLng parses a "lat,lng" token. ok is false for plain addresses.
func parseLatLng(token string) (lat, lng float64, ok bool) {
	latStr, lngStr, found := strings.Cut(token, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// boundingBox returns west, north, east, south degrees around a point.
func boundingBox(lat, lng, radiusMeters float64) (west, north, east, south float64) {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi
	dLng := dLat / math.Max(math.Cos(lat*math.Pi/180), 0.01)
	return lng - dLng, lat + dLat, lng + dLng, lat - dLat
}

func formatViewbox(west, north, east, south float64) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", west, north, east, south)
}
