package geo

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	nairobi := Coordinates{Lat: -1.2921, Lon: 36.8219}
	mombasa := Coordinates{Lat: -4.0435, Lon: 39.6682}

	d := HaversineKm(nairobi, mombasa)
	require.InDelta(t, 440, d, 5)
	require.Zero(t, HaversineKm(nairobi, nairobi))
}

func TestDestination_RoundTripDistance(t *testing.T) {
	origin := Coordinates{Lat: 1.2921, Lon: 36.8219}
	p := Destination(origin, math.Pi/3, 0.4)
	require.InDelta(t, 0.4, HaversineKm(origin, p), 1e-6)
}

func TestWrapLonAndClampLat(t *testing.T) {
	require.Equal(t, 90.0, ClampLat(91))
	require.Equal(t, -90.0, ClampLat(-120))
	require.InDelta(t, -179.0, WrapLon(181), 1e-9)
	require.InDelta(t, 179.0, WrapLon(-181), 1e-9)
	require.Equal(t, 10.0, WrapLon(10))
}

func TestFormatCoordinates(t *testing.T) {
	require.Equal(t, "1.292100, 36.821900", FormatCoordinates(1.2921, 36.8219))
	require.Equal(t, "-0.000001, 0.000000", FormatCoordinates(-0.000001, 0))
}

func TestValid(t *testing.T) {
	require.True(t, Valid(0, 0))
	require.True(t, Valid(-90, 180))
	require.False(t, Valid(90.1, 0))
	require.False(t, Valid(0, -180.5))
	require.False(t, Valid(math.NaN(), 0))
}

func TestObfuscate_BoundedAndNonIdentity(t *testing.T) {
	o := NewSeededObfuscator(0.5, 2.0, 42, 7)

	points := []Coordinates{
		{Lat: 1.2921, Lon: 36.8219},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 89.9999, Lon: 0},
		{Lat: -90, Lon: 45},
		{Lat: 0, Lon: 179.999},
		{Lat: 0, Lon: -180},
	}

	for _, p := range points {
		for i := 0; i < 200; i++ {
			out := o.Obfuscate(p.Lat, p.Lon)
			d := HaversineKm(p, out)

			require.Greater(t, d, 0.0, "obfuscated point equals the true one: %+v", p)
			require.LessOrEqual(t, d, o.MaxRadiusKm()+1e-6, "offset too large for %+v", p)
			require.True(t, Valid(out.Lat, out.Lon), "out of range: %+v", out)
		}
	}
}

func TestObfuscate_NotDeterministic(t *testing.T) {
	o := NewObfuscator(0.5, 2.0)
	a := o.Obfuscate(1.2921, 36.8219)
	b := o.Obfuscate(1.2921, 36.8219)
	require.NotEqual(t, a, b)
}

func TestObfuscate_SwapsAndDefaultsBounds(t *testing.T) {
	o := NewSeededObfuscator(3, 1, 1, 2)
	require.Equal(t, 3.0, o.MaxRadiusKm())

	d := NewSeededObfuscator(0, -1, 1, 2)
	require.Equal(t, DefaultMaxRadiusKm, d.MaxRadiusKm())
}

func TestObfuscate_ConcurrentUse(t *testing.T) {
	o := NewObfuscator(0.5, 2.0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.Obfuscate(10, 10)
			}
		}()
	}
	wg.Wait()
}
