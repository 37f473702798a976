package reports

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/features/notifications"
	"github.com/xyz-asif/rewardz/internal/pkg/cloudinary"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	"github.com/xyz-asif/rewardz/internal/pkg/tokens"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the persistence the service depends on
type Store interface {
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*Report, error)
	Replace(ctx context.Context, report *Report) error
	TransitionStatus(ctx context.Context, id primitive.ObjectID, status string) (*Report, error)
	SetPhoto(ctx context.Context, id primitive.ObjectID, url, publicID string, labels []string) (*Report, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, q ListQuery) ([]Report, int64, error)
	CreateSighting(ctx context.Context, s *Sighting) error
	ListSightings(ctx context.Context, reportID primitive.ObjectID, page, limit int) ([]Sighting, int64, error)
	Subscribe(ctx context.Context, filter ReportFilter, onChange func(ReportEvent)) (func(), error)
}

// Geocoder resolves location text. *geo.Geocoder satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, query string) *geo.GeoResult
	DisplayAddress(ctx context.Context, lat, lon float64) string
}

// Obfuscator produces public coordinates. *geo.Obfuscator satisfies it.
type Obfuscator interface {
	Obfuscate(lat, lon float64) geo.Coordinates
}

// PhotoStore keeps report photos. *cloudinary.Service satisfies it.
type PhotoStore interface {
	UploadImage(ctx context.Context, file multipart.File, filename string) (*cloudinary.UploadResult, error)
	Delete(ctx context.Context, publicID string, resourceType string) error
}

// Labeler detects photo labels. *vision.Labeler satisfies it.
type Labeler interface {
	Labels(ctx context.Context, imageURL string) ([]string, error)
}

// Matcher starts a background match pass for a report
type Matcher interface {
	Trigger(reportID primitive.ObjectID)
}

// Notifier delivers notifications. *notifications.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, userID primitive.ObjectID, kind string, payload notifications.Payload) error
}

// Deps groups the collaborators of Service. Photos, Labeler, Matcher and
// Notifier may be nil.
type Deps struct {
	Store      Store
	Geocoder   Geocoder
	Obfuscator Obfuscator
	Photos     PhotoStore
	Labeler    Labeler
	Matcher    Matcher
	Notifier   Notifier
	Log        logrus.FieldLogger
}

type Service struct {
	store      Store
	geocoder   Geocoder
	obfuscator Obfuscator
	photos     PhotoStore
	labeler    Labeler
	matcher    Matcher
	notifier   Notifier
	log        logrus.FieldLogger
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return &Service{
		store:      d.Store,
		geocoder:   d.Geocoder,
		obfuscator: d.Obfuscator,
		photos:     d.Photos,
		labeler:    d.Labeler,
		matcher:    d.Matcher,
		notifier:   d.Notifier,
		log:        d.Log,
	}
}

// SetMatcher wires the match orchestrator after construction, since the
// orchestrator itself reads reports through this feature's store
func (s *Service) SetMatcher(m Matcher) {
	s.matcher = m
}

// Create validates, locates, tokenizes and stores a new report, then starts
// a background match pass. Geocoding and matching failures never fail the
// request.
func (s *Service) Create(ctx context.Context, user *auth.User, req *CreateReportRequest) (*Report, error) {
	if err := ValidateCreateReport(req); err != nil {
		return nil, err
	}

	report := &Report{
		Type:        req.Type,
		Status:      StatusOpen,
		Name:        req.Name,
		Species:     req.Species,
		Breed:       req.Breed,
		Color:       req.Color,
		Markings:    req.Markings,
		MicrochipID: req.MicrochipID,
		Location:    req.Location,
		EventDate:   req.EventDate,
		CreatorID:   user.ID,
	}

	if req.RewardAmount != "" {
		m, _ := NewMoney(req.RewardAmount)
		report.RewardAmount = &m
	}

	s.locate(ctx, report, req.Lat, req.Lon)
	report.Tokens = reportTokens(report)

	if err := s.store.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	logger.Module(s.log, "reports", "Create").
		WithField("reportId", report.ID.Hex()).
		WithField("type", report.Type).
		WithField("located", report.Lat != nil).
		Info("report created")

	s.trigger(report)
	return report, nil
}

// Get returns a report as viewer is allowed to see it
func (s *Service) Get(ctx context.Context, id primitive.ObjectID, viewer *auth.User) (*Report, error) {
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return viewFor(report, viewer), nil
}

// List returns a page of public report views
func (s *Service) List(ctx context.Context, q ListQuery, viewer *auth.User) ([]*Report, int64, error) {
	list, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*Report, len(list))
	for i := range list {
		out[i] = viewFor(&list[i], viewer)
	}
	return out, total, nil
}

// Update applies an owner edit. Changing location text or coordinates runs
// geocoding and obfuscation again.
func (s *Service) Update(ctx context.Context, user *auth.User, id primitive.ObjectID, req *UpdateReportRequest) (*Report, error) {
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.IsOwner(user.ID) {
		return nil, fmt.Errorf("%w: only the creator can edit this report", apperrors.ErrForbidden)
	}
	if err := ValidateUpdateReport(report, req); err != nil {
		return nil, err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&report.Name, req.Name)
	apply(&report.Species, req.Species)
	apply(&report.Breed, req.Breed)
	apply(&report.Color, req.Color)
	apply(&report.Markings, req.Markings)
	apply(&report.MicrochipID, req.MicrochipID)

	if req.EventDate != nil {
		report.EventDate = req.EventDate
	}
	if req.RewardAmount != nil {
		if amount := strings.TrimSpace(*req.RewardAmount); amount == "" {
			report.RewardAmount = nil
		} else {
			m, _ := NewMoney(amount)
			report.RewardAmount = &m
		}
	}

	locationChanged := req.Location != nil && strings.TrimSpace(*req.Location) != report.Location
	if locationChanged || req.Lat != nil {
		apply(&report.Location, req.Location)
		report.Lat, report.Lon, report.PubLat, report.PubLon = nil, nil, nil, nil
		report.DisplayAddress = ""
		s.locate(ctx, report, req.Lat, req.Lon)
	}

	report.Tokens = reportTokens(report)

	if err := s.store.Replace(ctx, report); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}

	s.trigger(report)
	return report, nil
}

// UpdateStatus moves an open report forward. Only the creator may do it.
func (s *Service) UpdateStatus(ctx context.Context, user *auth.User, id primitive.ObjectID, status string) (*Report, error) {
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.IsOwner(user.ID) {
		return nil, fmt.Errorf("%w: only the creator can change status", apperrors.ErrForbidden)
	}
	if !CanTransition(report.Status, status) {
		return nil, fmt.Errorf("%w: cannot move from %s to %s", apperrors.ErrConflict, report.Status, status)
	}

	return s.store.TransitionStatus(ctx, id, status)
}

// Delete removes a report. The creator or a moderator may delete.
func (s *Service) Delete(ctx context.Context, user *auth.User, id primitive.ObjectID) error {
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.IsOwner(user.ID) && !user.IsModerator() {
		return fmt.Errorf("%w: only the creator or a moderator can delete", apperrors.ErrForbidden)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if report.PhotoPublicID != "" && s.photos != nil {
		if err := s.photos.Delete(ctx, report.PhotoPublicID, "image"); err != nil {
			logger.LogError(s.log, "reports", "Delete", "destroy photo", map[string]string{"publicId": report.PhotoPublicID}, err)
		}
	}
	return nil
}

// UploadPhoto stores a new photo, labels it and re-runs matching
func (s *Service) UploadPhoto(ctx context.Context, user *auth.User, id primitive.ObjectID, file multipart.File, header *multipart.FileHeader) (*Report, error) {
	if s.photos == nil {
		return nil, fmt.Errorf("%w: photo storage is not configured", apperrors.ErrUnavailable)
	}

	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.IsOwner(user.ID) {
		return nil, fmt.Errorf("%w: only the creator can change the photo", apperrors.ErrForbidden)
	}
	if err := cloudinary.ValidateImageFile(header); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	uploaded, err := s.photos.UploadImage(ctx, file, header.Filename)
	if err != nil {
		return nil, apperrors.E(apperrors.KindUpstream, "reports.UploadPhoto", err)
	}

	var labels []string
	if s.labeler != nil {
		labels, err = s.labeler.Labels(ctx, uploaded.URL)
		if err != nil {
			// the photo is kept without labels
			logger.LogError(s.log, "reports", "UploadPhoto", "detect labels", map[string]string{"reportId": id.Hex()}, err)
			labels = nil
		}
	}

	updated, err := s.store.SetPhoto(ctx, id, uploaded.URL, uploaded.PublicID, labels)
	if err != nil {
		return nil, err
	}

	if report.PhotoPublicID != "" {
		if err := s.photos.Delete(ctx, report.PhotoPublicID, "image"); err != nil {
			logger.LogError(s.log, "reports", "UploadPhoto", "destroy old photo", map[string]string{"publicId": report.PhotoPublicID}, err)
		}
	}

	s.trigger(updated)
	return updated, nil
}

// AddSighting records a sighting and alerts the report owner
func (s *Service) AddSighting(ctx context.Context, user *auth.User, reportID primitive.ObjectID, req *CreateSightingRequest) (*Sighting, error) {
	if err := ValidateSighting(req); err != nil {
		return nil, err
	}

	report, err := s.store.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != StatusOpen {
		return nil, fmt.Errorf("%w: report is %s", apperrors.ErrConflict, report.Status)
	}

	sighting := &Sighting{
		ReportID:   reportID,
		ReporterID: user.ID,
		Note:       req.Note,
		Location:   req.Location,
	}
	if req.SeenAt != nil {
		sighting.SeenAt = *req.SeenAt
	}

	lat, lon := req.Lat, req.Lon
	if lat == nil && req.Location != "" {
		if res := s.geocoder.Geocode(ctx, req.Location); res != nil {
			lat, lon = &res.Lat, &res.Lon
		}
	}
	if lat != nil && lon != nil {
		pub := s.obfuscator.Obfuscate(*lat, *lon)
		sighting.Lat, sighting.Lon = floatPtr(*lat), floatPtr(*lon)
		sighting.PubLat, sighting.PubLon = floatPtr(pub.Lat), floatPtr(pub.Lon)
	}

	if err := s.store.CreateSighting(ctx, sighting); err != nil {
		return nil, fmt.Errorf("create sighting: %w", err)
	}

	if s.notifier != nil && report.CreatorID != user.ID {
		where := sighting.Location
		if where == "" && sighting.PubLat != nil {
			where = s.geocoder.DisplayAddress(ctx, *sighting.PubLat, *sighting.PubLon)
		}
		payload := notifications.Payload{
			Title:    fmt.Sprintf("Someone may have seen %s", petLabel(report)),
			Body:     strings.TrimSpace(strings.Join([]string{where, sighting.Note}, " ")),
			ReportID: &report.ID,
			Data:     map[string]string{"sightingId": sighting.ID.Hex()},
		}
		if err := s.notifier.Notify(ctx, report.CreatorID, notifications.KindAlert, payload); err != nil {
			logger.LogError(s.log, "reports", "AddSighting", "notify owner", map[string]string{"reportId": report.ID.Hex()}, err)
		}
	}

	return sighting, nil
}

// ListSightings returns a page of sightings for a report
func (s *Service) ListSightings(ctx context.Context, reportID primitive.ObjectID, page, limit int) ([]Sighting, int64, error) {
	if _, err := s.store.GetByID(ctx, reportID); err != nil {
		return nil, 0, err
	}
	return s.store.ListSightings(ctx, reportID, page, limit)
}

// Subscribe streams report changes as public views
func (s *Service) Subscribe(ctx context.Context, filter ReportFilter, onChange func(ReportEvent)) (func(), error) {
	return s.store.Subscribe(ctx, filter, func(ev ReportEvent) {
		if ev.Report != nil {
			ev.Report = ev.Report.PublicView()
		}
		onChange(ev)
	})
}

// locate fills true and public coordinates from explicit lat/lon or by
// geocoding the location text. Nothing is set when both fail.
func (s *Service) locate(ctx context.Context, report *Report, lat, lon *float64) {
	if lat == nil || lon == nil {
		if report.Location == "" {
			return
		}
		res := s.geocoder.Geocode(ctx, report.Location)
		if res == nil {
			return
		}
		lat, lon = floatPtr(res.Lat), floatPtr(res.Lon)
		report.DisplayAddress = res.DisplayAddress
	}

	pub := s.obfuscator.Obfuscate(*lat, *lon)
	report.Lat, report.Lon = floatPtr(*lat), floatPtr(*lon)
	report.PubLat, report.PubLon = floatPtr(pub.Lat), floatPtr(pub.Lon)

	if report.DisplayAddress == "" {
		report.DisplayAddress = s.geocoder.DisplayAddress(ctx, pub.Lat, pub.Lon)
	}
}

func (s *Service) trigger(report *Report) {
	if s.matcher != nil && report.Status == StatusOpen {
		s.matcher.Trigger(report.ID)
	}
}

func reportTokens(r *Report) []string {
	return tokens.Tokenize(r.Name, r.Species, r.Breed, r.Color, r.Markings, r.Location)
}

func viewFor(r *Report, viewer *auth.User) *Report {
	if viewer != nil && (r.IsOwner(viewer.ID) || viewer.IsModerator()) {
		return r
	}
	return r.PublicView()
}

func petLabel(r *Report) string {
	if r.Name != "" {
		return r.Name
	}
	return "a " + strings.ToLower(r.Species)
}

func floatPtr(f float64) *float64 {
	return &f
}

