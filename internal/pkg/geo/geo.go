package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean earth radius used for great-circle maths
const EarthRadiusKm = 6371.0088

// Coordinates is a latitude/longitude pair in degrees
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// GeoResult is a resolved location. It is never persisted on its own.
type GeoResult struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DisplayAddress string  `json:"displayAddress,omitempty"`
}

// Coordinates returns the pair without the address
func (r *GeoResult) Coordinates() Coordinates {
	return Coordinates{Lat: r.Lat, Lon: r.Lon}
}

// Valid reports whether lat/lon are inside the WGS84 ranges
func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// HaversineKm is the great-circle distance between a and b
func HaversineKm(a, b Coordinates) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Destination travels distKm from origin along the initial bearing (radians)
func Destination(origin Coordinates, bearing, distKm float64) Coordinates {
	lat1 := toRad(origin.Lat)
	lon1 := toRad(origin.Lon)
	angular := distKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Coordinates{
		Lat: ClampLat(toDeg(lat2)),
		Lon: WrapLon(toDeg(lon2)),
	}
}

// ClampLat pins a latitude into [-90, 90]
func ClampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

// WrapLon folds a longitude into [-180, 180]
func WrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	wrapped := math.Mod(lon+180, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped - 180
}

// FormatCoordinates renders "lat, lon" with 6 decimals. Used when reverse
// geocoding has nothing better.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
