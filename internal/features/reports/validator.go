package reports

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"github.com/xyz-asif/rewardz/internal/pkg/validator"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
)

const maxReward = 1_000_000

// invalid wraps a message as a validation failure
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, fmt.Sprintf(format, args...))
}

// ValidateCreateReport checks and normalizes a new report. Nothing is written
// when it fails.
func ValidateCreateReport(req *CreateReportRequest) error {
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if !validator.IsValidReportType(req.Type) {
		return invalid("type must be lost or found")
	}

	req.Species = strings.TrimSpace(req.Species)
	if !validator.IsValidSpecies(req.Species) {
		return invalid("species is required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Breed = strings.TrimSpace(req.Breed)
	req.Color = strings.TrimSpace(req.Color)
	req.Markings = strings.TrimSpace(req.Markings)
	req.Location = strings.TrimSpace(req.Location)
	req.MicrochipID = strings.TrimSpace(req.MicrochipID)

	if req.MicrochipID != "" && !validator.IsValidMicrochip(req.MicrochipID) {
		return invalid("microchipId must be 9 to 15 letters or digits")
	}

	if err := validateCoordinates(req.Lat, req.Lon); err != nil {
		return err
	}
	if req.Location == "" && req.Lat == nil {
		return invalid("location or coordinates are required")
	}

	if err := validateReward(req.Type, req.RewardAmount); err != nil {
		return err
	}

	return validateEventDate(req.EventDate)
}

// ValidateUpdateReport checks an owner edit against the current report
func ValidateUpdateReport(current *Report, req *UpdateReportRequest) error {
	if req.Type != nil && strings.ToLower(strings.TrimSpace(*req.Type)) != current.Type {
		return invalid("type cannot be changed")
	}

	if req.Species != nil {
		s := strings.TrimSpace(*req.Species)
		if !validator.IsValidSpecies(s) {
			return invalid("species is required")
		}
		req.Species = &s
	}

	if req.MicrochipID != nil {
		id := strings.TrimSpace(*req.MicrochipID)
		if id != "" && !validator.IsValidMicrochip(id) {
			return invalid("microchipId must be 9 to 15 letters or digits")
		}
		req.MicrochipID = &id
	}

	if err := validateCoordinates(req.Lat, req.Lon); err != nil {
		return err
	}

	if req.RewardAmount != nil {
		if err := validateReward(current.Type, *req.RewardAmount); err != nil {
			return err
		}
	}

	return validateEventDate(req.EventDate)
}

// CanTransition reports whether status may move from -> to. Only open
// reports move, and only forward.
func CanTransition(from, to string) bool {
	if from != StatusOpen {
		return false
	}
	return to == StatusClosed || to == StatusReunited
}

// ValidateSighting checks a sighting payload
func ValidateSighting(req *CreateSightingRequest) error {
	req.Note = strings.TrimSpace(req.Note)
	req.Location = strings.TrimSpace(req.Location)

	if req.Note == "" && req.Location == "" && req.Lat == nil {
		return invalid("a note, location or coordinates are required")
	}
	if err := validateCoordinates(req.Lat, req.Lon); err != nil {
		return err
	}
	if req.SeenAt != nil && req.SeenAt.After(time.Now().Add(time.Hour)) {
		return invalid("seenAt cannot be in the future")
	}
	return nil
}

// ValidateListQuery normalizes paging and filters
func ValidateListQuery(q *ListQuery) error {
	q.Page, q.Limit = pagination.Normalize(q.Page, q.Limit, 50)

	q.Type = strings.ToLower(strings.TrimSpace(q.Type))
	if q.Type != "" && !validator.IsValidReportType(q.Type) {
		return errors.New("type must be lost or found")
	}
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if q.Status != "" && !validator.IsValidReportStatus(q.Status) {
		return errors.New("status must be open, closed or reunited")
	}
	q.Species = strings.TrimSpace(q.Species)
	q.Q = strings.TrimSpace(q.Q)
	return nil
}

func validateCoordinates(lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return invalid("lat and lon must be given together")
	}
	if lat != nil && !geo.Valid(*lat, *lon) {
		return invalid("coordinates are out of range")
	}
	return nil
}

func validateReward(reportType, amount string) error {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil
	}
	if reportType != TypeLost {
		return invalid("only lost reports can carry a reward")
	}
	m, err := NewMoney(amount)
	if err != nil {
		return invalid("rewardAmount must be a number")
	}
	if m.IsNegative() {
		return invalid("rewardAmount cannot be negative")
	}
	if m.GreaterThan(decimal.NewFromInt(maxReward)) {
		return invalid("rewardAmount is too large")
	}
	return nil
}

func validateEventDate(t *time.Time) error {
	if t != nil && t.After(time.Now().Add(24*time.Hour)) {
		return invalid("eventDate cannot be in the future")
	}
	return nil
}
