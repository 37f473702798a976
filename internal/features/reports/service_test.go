package reports

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/notifications"
	"github.com/xyz-asif/rewardz/internal/pkg/cloudinary"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memStore struct {
	mu        sync.Mutex
	reports   map[primitive.ObjectID]*Report
	sightings []Sighting
}

func newMemStore() *memStore {
	return &memStore{reports: map[primitive.ObjectID]*Report{}}
}

func (m *memStore) Create(ctx context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = primitive.NewObjectID()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id primitive.ObjectID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) Replace(ctx context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) TransitionStatus(ctx context.Context, id primitive.ObjectID, status string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if r.Status != StatusOpen {
		return nil, apperrors.ErrConflict
	}
	r.Status = status
	cp := *r
	return &cp, nil
}

func (m *memStore) SetPhoto(ctx context.Context, id primitive.ObjectID, url, publicID string, labels []string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.reports[id]
	r.PhotoURL, r.PhotoPublicID, r.PhotoLabels = url, publicID, labels
	cp := *r
	return &cp, nil
}

func (m *memStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	return nil
}

func (m *memStore) List(ctx context.Context, q ListQuery) ([]Report, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Report{}
	for _, r := range m.reports {
		if q.ReportFilter.Matches(r) {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) CreateSighting(ctx context.Context, s *Sighting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = primitive.NewObjectID()
	m.sightings = append(m.sightings, *s)
	return nil
}

func (m *memStore) ListSightings(ctx context.Context, reportID primitive.ObjectID, page, limit int) ([]Sighting, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Sighting{}
	for _, s := range m.sightings {
		if s.ReportID == reportID {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) Subscribe(ctx context.Context, filter ReportFilter, onChange func(ReportEvent)) (func(), error) {
	return nil, apperrors.ErrUnavailable
}

type stubGeocoder struct {
	places   map[string]geo.GeoResult
	reversed int
}

func (g *stubGeocoder) Geocode(ctx context.Context, q string) *geo.GeoResult {
	if res, ok := g.places[q]; ok {
		return &res
	}
	return nil
}

func (g *stubGeocoder) DisplayAddress(ctx context.Context, lat, lon float64) string {
	g.reversed++
	return geo.FormatCoordinates(lat, lon)
}

type recordingMatcher struct {
	triggered []primitive.ObjectID
}

func (m *recordingMatcher) Trigger(id primitive.ObjectID) {
	m.triggered = append(m.triggered, id)
}

type sent struct {
	userID  primitive.ObjectID
	kind    string
	payload notifications.Payload
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) Notify(ctx context.Context, userID primitive.ObjectID, kind string, p notifications.Payload) error {
	n.sent = append(n.sent, sent{userID, kind, p})
	return nil
}

type stubPhotos struct {
	deleted []string
}

func (p *stubPhotos) UploadImage(ctx context.Context, file multipart.File, filename string) (*cloudinary.UploadResult, error) {
	return &cloudinary.UploadResult{URL: "https://res.cloudinary.com/rewardz/" + filename, PublicID: "reports/" + filename}, nil
}

func (p *stubPhotos) Delete(ctx context.Context, publicID string, resourceType string) error {
	p.deleted = append(p.deleted, publicID)
	return nil
}

type failingLabeler struct{}

func (failingLabeler) Labels(ctx context.Context, imageURL string) ([]string, error) {
	return nil, errors.New("vision quota exceeded")
}

type fixture struct {
	svc      *Service
	store    *memStore
	geocoder *stubGeocoder
	matcher  *recordingMatcher
	notifier *recordingNotifier
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		geocoder: &stubGeocoder{places: map[string]geo.GeoResult{
			"Kilimani, Nairobi": {Lat: -1.2921, Lon: 36.7856, DisplayAddress: "Kilimani, Nairobi, Kenya"},
		}},
		matcher:  &recordingMatcher{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(Deps{
		Store:      f.store,
		Geocoder:   f.geocoder,
		Obfuscator: geo.NewSeededObfuscator(0.5, 2, 1, 2),
		Matcher:    f.matcher,
		Notifier:   f.notifier,
		Log:        logger.Discard(),
	})
	return f
}

func newUser() *auth.User {
	return &auth.User{ID: primitive.NewObjectID(), Role: auth.RoleUser}
}

func lostDog() *CreateReportRequest {
	return &CreateReportRequest{
		Type:         "lost",
		Name:         "Bruno",
		Species:      "Dog",
		Breed:        "Labrador Retriever",
		Color:        "Golden",
		Location:     "Kilimani, Nairobi",
		RewardAmount: "5000",
	}
}

func TestCreate_GeocodesObfuscatesAndTriggers(t *testing.T) {
	f := newFixture()
	report, err := f.svc.Create(context.Background(), newUser(), lostDog())
	require.NoError(t, err)

	require.NotNil(t, report.Lat)
	require.Equal(t, -1.2921, *report.Lat)
	require.NotNil(t, report.PubLat)

	d := geo.HaversineKm(geo.Coordinates{Lat: *report.Lat, Lon: *report.Lon}, geo.Coordinates{Lat: *report.PubLat, Lon: *report.PubLon})
	require.Greater(t, d, 0.0)
	require.LessOrEqual(t, d, 2.0+1e-6)

	require.Equal(t, "Kilimani, Nairobi, Kenya", report.DisplayAddress)
	require.Zero(t, f.geocoder.reversed)
	require.Equal(t, "5000", report.RewardAmount.String())
	require.Contains(t, report.Tokens, "labrador")
	require.Equal(t, []primitive.ObjectID{report.ID}, f.matcher.triggered)
}

func TestCreate_CoordinatesOnlyUsesReverseOfPublicPoint(t *testing.T) {
	f := newFixture()
	lat, lon := -1.3, 36.8
	req := &CreateReportRequest{Type: "found", Species: "Cat", Lat: &lat, Lon: &lon}

	report, err := f.svc.Create(context.Background(), newUser(), req)
	require.NoError(t, err)
	require.Equal(t, 1, f.geocoder.reversed)
	require.Equal(t, geo.FormatCoordinates(*report.PubLat, *report.PubLon), report.DisplayAddress)
}

func TestCreate_GeocodeMissStillStores(t *testing.T) {
	f := newFixture()
	req := lostDog()
	req.Location = "somewhere unknown"

	report, err := f.svc.Create(context.Background(), newUser(), req)
	require.NoError(t, err)
	require.Nil(t, report.Lat)
	require.Nil(t, report.PubLat)
	require.Empty(t, report.DisplayAddress)
	require.Len(t, f.matcher.triggered, 1)
}

func TestCreate_ValidationWritesNothing(t *testing.T) {
	f := newFixture()
	req := lostDog()
	req.Type = "found"

	_, err := f.svc.Create(context.Background(), newUser(), req)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Empty(t, f.store.reports)
	require.Empty(t, f.matcher.triggered)
}

func TestGet_HidesTrueCoordinatesFromStrangers(t *testing.T) {
	f := newFixture()
	owner := newUser()
	req := lostDog()
	req.MicrochipID = "985112003456789"
	created, err := f.svc.Create(context.Background(), owner, req)
	require.NoError(t, err)

	public, err := f.svc.Get(context.Background(), created.ID, nil)
	require.NoError(t, err)
	require.Nil(t, public.Lat)
	require.Empty(t, public.MicrochipID)
	require.NotNil(t, public.PubLat)

	own, err := f.svc.Get(context.Background(), created.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, own.Lat)
	require.Equal(t, "985112003456789", own.MicrochipID)

	mod := &auth.User{ID: primitive.NewObjectID(), Role: auth.RoleModerator}
	seen, err := f.svc.Get(context.Background(), created.ID, mod)
	require.NoError(t, err)
	require.NotNil(t, seen.Lat)
}

func TestUpdate_OwnerOnlyAndRelocates(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	color := "Black"
	_, err = f.svc.Update(context.Background(), newUser(), created.ID, &UpdateReportRequest{Color: &color})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	lat, lon := 10.0, 20.0
	updated, err := f.svc.Update(context.Background(), owner, created.ID, &UpdateReportRequest{Color: &color, Lat: &lat, Lon: &lon})
	require.NoError(t, err)
	require.Equal(t, "Black", updated.Color)
	require.Equal(t, 10.0, *updated.Lat)
	require.Contains(t, updated.Tokens, "black")
	require.NotContains(t, updated.Tokens, "golden")
	require.Len(t, f.matcher.triggered, 2)

	found := "found"
	_, err = f.svc.Update(context.Background(), owner, created.ID, &UpdateReportRequest{Type: &found})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUpdate_ClearsReward(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	empty := ""
	updated, err := f.svc.Update(context.Background(), owner, created.ID, &UpdateReportRequest{RewardAmount: &empty})
	require.NoError(t, err)
	require.Nil(t, updated.RewardAmount)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), newUser(), created.ID, StatusClosed)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	closed, err := f.svc.UpdateStatus(context.Background(), owner, created.ID, StatusClosed)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = f.svc.UpdateStatus(context.Background(), owner, created.ID, StatusReunited)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDelete_ModeratorAllowed(t *testing.T) {
	f := newFixture()
	created, err := f.svc.Create(context.Background(), newUser(), lostDog())
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(context.Background(), newUser(), created.ID), apperrors.ErrForbidden)

	mod := &auth.User{ID: primitive.NewObjectID(), Role: auth.RoleModerator}
	require.NoError(t, f.svc.Delete(context.Background(), mod, created.ID))

	_, err = f.svc.Get(context.Background(), created.ID, nil)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUploadPhoto_UnavailableWithoutStorage(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	_, err = f.svc.UploadPhoto(context.Background(), owner, created.ID, nil, nil)
	require.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestUploadPhoto_LabelFailureKeepsPhotoAndLogs(t *testing.T) {
	f := newFixture()
	log, hook := test.NewNullLogger()
	photos := &stubPhotos{}
	f.svc.photos, f.svc.labeler, f.svc.log = photos, failingLabeler{}, log

	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	header := &multipart.FileHeader{Filename: "bruno.jpg", Size: 1024}
	updated, err := f.svc.UploadPhoto(context.Background(), owner, created.ID, nil, header)
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/rewardz/bruno.jpg", updated.PhotoURL)
	assert.Empty(t, updated.PhotoLabels)
	assert.Equal(t, []primitive.ObjectID{created.ID, created.ID}, f.matcher.triggered)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "vision quota exceeded", entry.Message)
	assert.Equal(t, "detect labels", entry.Data["context"])
}

func TestAddSighting_AlertsOwner(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)

	spotter := newUser()
	s, err := f.svc.AddSighting(context.Background(), spotter, created.ID, &CreateSightingRequest{
		Note:     "Running near the mall",
		Location: "Kilimani, Nairobi",
	})
	require.NoError(t, err)
	require.NotNil(t, s.Lat)
	require.NotNil(t, s.PubLat)

	require.Len(t, f.notifier.sent, 1)
	got := f.notifier.sent[0]
	assert.Equal(t, owner.ID, got.userID)
	assert.Equal(t, notifications.KindAlert, got.kind)
	assert.Equal(t, "Someone may have seen Bruno", got.payload.Title)
	assert.Equal(t, created.ID, *got.payload.ReportID)

	// the owner logging their own sighting is not alerted
	_, err = f.svc.AddSighting(context.Background(), owner, created.ID, &CreateSightingRequest{Note: "Still missing"})
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)

	list, total, err := f.svc.ListSightings(context.Background(), created.ID, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, list, 2)
}

func TestAddSighting_ClosedReportConflicts(t *testing.T) {
	f := newFixture()
	owner := newUser()
	created, err := f.svc.Create(context.Background(), owner, lostDog())
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), owner, created.ID, StatusReunited)
	require.NoError(t, err)

	_, err = f.svc.AddSighting(context.Background(), newUser(), created.ID, &CreateSightingRequest{Note: "seen"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestHandler_ListReturnsPublicViews(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture()
	_, err := f.svc.Create(context.Background(), newUser(), lostDog())
	require.NoError(t, err)

	r := gin.New()
	h := NewHandler(f.svc)
	r.GET("/reports", h.ListReports)
	r.GET("/reports/stream", h.StreamReports)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports?type=lost", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data PaginatedReportsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Reports, 1)
	require.Nil(t, body.Data.Reports[0].Lat)
	require.NotNil(t, body.Data.Reports[0].PubLat)
	require.EqualValues(t, 1, body.Data.Pagination.Total)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports?type=stray", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/stream", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
