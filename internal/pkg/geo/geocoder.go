package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/pkg/cache"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// GeocoderConfig configures the Nominatim-compatible lookup
type GeocoderConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Geocoder resolves free text to coordinates and back. Failures never reach
// the caller of Geocode/ReverseGeocode; they come back as nil.
type Geocoder struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	cacheTTL  time.Duration
	client    *http.Client
	cache     *cache.Store
	group     singleflight.Group
	log       logrus.FieldLogger
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type nominatimReverse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewGeocoder builds a geocoder. store may be nil.
func NewGeocoder(cfg GeocoderConfig, store *cache.Store, log logrus.FieldLogger) *Geocoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "rewardz-api/1.0"
	}
	client := cfg.HTTPClient
	if client == nil {
		// the per-call context carries the real deadline; this is only a backstop
		client = &http.Client{Timeout: cfg.Timeout + time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}

	return &Geocoder{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		cacheTTL:  cfg.CacheTTL,
		client:    client,
		cache:     store,
		log:       log,
	}
}

// Geocode returns the best match for query, or nil if none was found or the
// lookup failed
func (g *Geocoder) Geocode(ctx context.Context, query string) *GeoResult {
	res, err := g.Lookup(ctx, query)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindNotFound {
			logger.Module(g.log, "geo", "Geocode").
				WithField("query", query).
				WithField("kind", apperrors.KindOf(err)).
				Warn(err.Error())
		}
		return nil
	}
	return res
}

// ReverseGeocode returns a display address for lat/lon, or nil on failure
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) *string {
	addr, err := g.Reverse(ctx, lat, lon)
	if err != nil {
		logger.Module(g.log, "geo", "ReverseGeocode").
			WithField("lat", lat).
			WithField("lon", lon).
			WithField("kind", apperrors.KindOf(err)).
			Debug(err.Error())
		return nil
	}
	return &addr
}

// DisplayAddress is ReverseGeocode with the "lat, lon" fallback applied
func (g *Geocoder) DisplayAddress(ctx context.Context, lat, lon float64) string {
	if addr := g.ReverseGeocode(ctx, lat, lon); addr != nil {
		return *addr
	}
	return FormatCoordinates(lat, lon)
}

// Lookup is the error-returning form of Geocode
func (g *Geocoder) Lookup(ctx context.Context, query string) (*GeoResult, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, apperrors.E(apperrors.KindInvalidInput, "geocode", fmt.Errorf("empty query"))
	}

	key := "geo:fwd:" + normalized
	var cached GeoResult
	if hit, _ := g.cache.GetObject(ctx, key, &cached); hit {
		return &cached, nil
	}

	v, err := g.shared(ctx, key, "geocode", func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("q", normalized)
		params.Set("format", "jsonv2")
		params.Set("limit", "1")

		var places []nominatimPlace
		if err := g.getJSON(ctx, "/search", params, &places); err != nil {
			return nil, apperrors.E(kindFor(err), "geocode", err)
		}
		if len(places) == 0 {
			return nil, apperrors.E(apperrors.KindNotFound, "geocode", fmt.Errorf("no match for %q", normalized))
		}

		lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
		lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
		if errLat != nil || errLon != nil || !Valid(lat, lon) {
			return nil, apperrors.E(apperrors.KindUpstream, "geocode", fmt.Errorf("bad coordinates %q,%q", places[0].Lat, places[0].Lon))
		}

		res := &GeoResult{Lat: lat, Lon: lon, DisplayAddress: places[0].DisplayName}
		if err := g.cache.SetObject(ctx, key, res, g.cacheTTL); err != nil {
			logger.Module(g.log, "geo", "Lookup").Warn("cache write failed: " + err.Error())
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*GeoResult), nil
}

// Reverse is the error-returning form of ReverseGeocode
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	if !Valid(lat, lon) {
		return "", apperrors.E(apperrors.KindInvalidInput, "reverse", fmt.Errorf("coordinates out of range"))
	}

	key := fmt.Sprintf("geo:rev:%.5f,%.5f", lat, lon)
	var cached string
	if hit, _ := g.cache.GetObject(ctx, key, &cached); hit && cached != "" {
		return cached, nil
	}

	v, err := g.shared(ctx, key, "reverse", func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
		params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
		params.Set("format", "jsonv2")

		var rev nominatimReverse
		if err := g.getJSON(ctx, "/reverse", params, &rev); err != nil {
			return "", apperrors.E(kindFor(err), "reverse", err)
		}
		if rev.Error != "" || rev.DisplayName == "" {
			return "", apperrors.E(apperrors.KindNotFound, "reverse", fmt.Errorf("no address: %s", rev.Error))
		}

		_ = g.cache.SetObject(ctx, key, rev.DisplayName, g.cacheTTL)
		return rev.DisplayName, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// shared runs fn once for concurrent callers of key. fn gets a context that
// no single caller can cancel; getJSON still bounds it with g.timeout. Each
// caller stops waiting when its own ctx ends.
func (g *Geocoder) shared(ctx context.Context, key, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, apperrors.E(kindFor(ctx.Err()), op, ctx.Err())
	}
}

func (g *Geocoder) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("decode geocoder response: %w", err)
	}
	return nil
}

func kindFor(err error) apperrors.Kind {
	if apperrors.Is(err, context.DeadlineExceeded) {
		return apperrors.KindTimeout
	}
	return apperrors.KindUpstream
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
