package geo

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultMinRadiusKm = 0.5
	DefaultMaxRadiusKm = 2.0
)

// Obfuscator moves true coordinates by a bounded random offset so a report's
// public pin never gives away the reporter's exact address
type Obfuscator struct {
	minKm float64
	maxKm float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewObfuscator builds an obfuscator for offsets in [minKm, maxKm].
// Non-positive bounds fall back to the defaults.
func NewObfuscator(minKm, maxKm float64) *Obfuscator {
	seed := uint64(time.Now().UnixNano())
	return NewSeededObfuscator(minKm, maxKm, seed, seed>>1|1)
}

// NewSeededObfuscator is NewObfuscator with a fixed PCG seed
func NewSeededObfuscator(minKm, maxKm float64, seed1, seed2 uint64) *Obfuscator {
	if minKm <= 0 {
		minKm = DefaultMinRadiusKm
	}
	if maxKm <= 0 {
		maxKm = DefaultMaxRadiusKm
	}
	if maxKm < minKm {
		minKm, maxKm = maxKm, minKm
	}
	return &Obfuscator{
		minKm: minKm,
		maxKm: maxKm,
		rng:   rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// MaxRadiusKm is the furthest a public point can be from the true one
func (o *Obfuscator) MaxRadiusKm() float64 {
	return o.maxKm
}

// Obfuscate returns a public pair within MaxRadiusKm of (lat, lon) and never
// equal to it
func (o *Obfuscator) Obfuscate(lat, lon float64) Coordinates {
	origin := Coordinates{Lat: ClampLat(lat), Lon: WrapLon(lon)}

	for {
		o.mu.Lock()
		bearing := o.rng.Float64() * 2 * math.Pi
		dist := o.minKm + o.rng.Float64()*(o.maxKm-o.minKm)
		o.mu.Unlock()

		out := Destination(origin, bearing, dist)
		if out != origin {
			return out
		}
	}
}
