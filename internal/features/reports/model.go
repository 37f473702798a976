package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xyz-asif/rewardz/internal/pkg/geo"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Report types
const (
	TypeLost  = "lost"
	TypeFound = "found"
)

// Report statuses
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusReunited = "reunited"
)

// Opposite returns the report type a report of type t is matched against
func Opposite(t string) string {
	if t == TypeLost {
		return TypeFound
	}
	return TypeLost
}

// Money is a reward amount. It is stored as Decimal128 and rendered in JSON
// as a string.
type Money struct {
	decimal.Decimal
}

// NewMoney parses an amount such as "2500" or "49.99"
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Decimal: d}, nil
}

// MarshalBSONValue implements bson.ValueMarshaler
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(m.Decimal.String())
	if err != nil {
		return 0, nil, err
	}
	return bson.MarshalValue(d)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	switch t {
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(raw.Decimal128().String())
		if err != nil {
			return err
		}
		m.Decimal = d
	case bsontype.Double:
		m.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		m.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		m.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.Null, bsontype.Undefined:
		m.Decimal = decimal.Zero
	case bsontype.String:
		d, err := decimal.NewFromString(raw.StringValue())
		if err != nil {
			return err
		}
		m.Decimal = d
	default:
		return fmt.Errorf("cannot decode %s into Money", t)
	}
	return nil
}

// Report is a lost or found pet record
type Report struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type           string             `bson:"type" json:"type"`
	Status         string             `bson:"status" json:"status"`
	Name           string             `bson:"name" json:"name"`
	Species        string             `bson:"species" json:"species"`
	Breed          string             `bson:"breed" json:"breed"`
	Color          string             `bson:"color" json:"color"`
	Markings       string             `bson:"markings" json:"markings"`
	MicrochipID    string             `bson:"microchipId,omitempty" json:"microchipId,omitempty"`
	Location       string             `bson:"location" json:"location"`
	DisplayAddress string             `bson:"displayAddress,omitempty" json:"displayAddress,omitempty"`
	Lat            *float64           `bson:"lat,omitempty" json:"lat,omitempty"`
	Lon            *float64           `bson:"lon,omitempty" json:"lon,omitempty"`
	PubLat         *float64           `bson:"pubLat,omitempty" json:"pubLat,omitempty"`
	PubLon         *float64           `bson:"pubLon,omitempty" json:"pubLon,omitempty"`
	RewardAmount   *Money             `bson:"rewardAmount,omitempty" json:"rewardAmount,omitempty" swaggertype:"string"`
	PhotoURL       string             `bson:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	PhotoPublicID  string             `bson:"photoPublicId,omitempty" json:"-"`
	PhotoLabels    []string           `bson:"photoLabels,omitempty" json:"photoLabels,omitempty"`
	EventDate      *time.Time         `bson:"eventDate,omitempty" json:"eventDate,omitempty"`
	CreatorID      primitive.ObjectID `bson:"creatorId" json:"creatorId"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
	Tokens         []string           `bson:"tokens" json:"-"`
}

// TrueCoordinates returns the reporter-supplied point, if any
func (r *Report) TrueCoordinates() (geo.Coordinates, bool) {
	if r.Lat == nil || r.Lon == nil {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Lat: *r.Lat, Lon: *r.Lon}, true
}

// PublicCoordinates returns the obfuscated point, if any
func (r *Report) PublicCoordinates() (geo.Coordinates, bool) {
	if r.PubLat == nil || r.PubLon == nil {
		return geo.Coordinates{}, false
	}
	return geo.Coordinates{Lat: *r.PubLat, Lon: *r.PubLon}, true
}

// ReferenceTime is when the pet went missing or was found, falling back to
// when the report was filed
func (r *Report) ReferenceTime() time.Time {
	if r.EventDate != nil && !r.EventDate.IsZero() {
		return *r.EventDate
	}
	return r.CreatedAt
}

// IsOwner reports whether userID created the report
func (r *Report) IsOwner(userID primitive.ObjectID) bool {
	return !userID.IsZero() && r.CreatorID == userID
}

// PublicView is a copy safe to show to someone other than the owner
func (r *Report) PublicView() *Report {
	out := *r
	out.Lat = nil
	out.Lon = nil
	out.MicrochipID = ""
	if out.DisplayAddress == "" {
		if pub, ok := r.PublicCoordinates(); ok {
			out.DisplayAddress = geo.FormatCoordinates(pub.Lat, pub.Lon)
		}
	}
	return &out
}

// Sighting is a third-party report of having seen the pet
type Sighting struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReportID   primitive.ObjectID `bson:"reportId" json:"reportId"`
	ReporterID primitive.ObjectID `bson:"reporterId" json:"reporterId"`
	Note       string             `bson:"note" json:"note"`
	Location   string             `bson:"location" json:"location"`
	Lat        *float64           `bson:"lat,omitempty" json:"-"`
	Lon        *float64           `bson:"lon,omitempty" json:"-"`
	PubLat     *float64           `bson:"pubLat,omitempty" json:"pubLat,omitempty"`
	PubLon     *float64           `bson:"pubLon,omitempty" json:"pubLon,omitempty"`
	SeenAt     time.Time          `bson:"seenAt" json:"seenAt"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// ReportEvent is one change delivered to a subscriber
type ReportEvent struct {
	Operation string             `json:"operation"`
	ReportID  primitive.ObjectID `json:"reportId"`
	Report    *Report            `json:"report,omitempty"`
}

// ReportFilter narrows a subscription
type ReportFilter struct {
	Type    string `form:"type"`
	Status  string `form:"status"`
	Species string `form:"species"`
}

// Matches reports whether r passes the filter
func (f ReportFilter) Matches(r *Report) bool {
	if r == nil {
		return true
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Species != "" && !strings.EqualFold(r.Species, f.Species) {
		return false
	}
	return true
}

// Request DTOs

// CreateReportRequest represents the payload for filing a report
type CreateReportRequest struct {
	Type         string     `json:"type" binding:"required,reporttype"`
	Name         string     `json:"name" binding:"max=80"`
	Species      string     `json:"species" binding:"required,species"`
	Breed        string     `json:"breed" binding:"max=80"`
	Color        string     `json:"color" binding:"max=80"`
	Markings     string     `json:"markings" binding:"max=500"`
	MicrochipID  string     `json:"microchipId" binding:"omitempty,microchip"`
	Location     string     `json:"location" binding:"max=200"`
	Lat          *float64   `json:"lat" binding:"omitempty,latitude"`
	Lon          *float64   `json:"lon" binding:"omitempty,longitude"`
	RewardAmount string     `json:"rewardAmount"`
	EventDate    *time.Time `json:"eventDate"`
}

// UpdateReportRequest represents an owner edit. Nil fields are unchanged.
type UpdateReportRequest struct {
	Type         *string    `json:"type"`
	Name         *string    `json:"name" binding:"omitempty,max=80"`
	Species      *string    `json:"species" binding:"omitempty,species"`
	Breed        *string    `json:"breed" binding:"omitempty,max=80"`
	Color        *string    `json:"color" binding:"omitempty,max=80"`
	Markings     *string    `json:"markings" binding:"omitempty,max=500"`
	MicrochipID  *string    `json:"microchipId"`
	Location     *string    `json:"location" binding:"omitempty,max=200"`
	Lat          *float64   `json:"lat" binding:"omitempty,latitude"`
	Lon          *float64   `json:"lon" binding:"omitempty,longitude"`
	RewardAmount *string    `json:"rewardAmount"`
	EventDate    *time.Time `json:"eventDate"`
}

// UpdateStatusRequest represents a status transition
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,reportstatus"`
}

// CreateSightingRequest represents a sighting of a reported pet
type CreateSightingRequest struct {
	Note     string     `json:"note" binding:"max=1000"`
	Location string     `json:"location" binding:"max=200"`
	Lat      *float64   `json:"lat" binding:"omitempty,latitude"`
	Lon      *float64   `json:"lon" binding:"omitempty,longitude"`
	SeenAt   *time.Time `json:"seenAt"`
}

// ListQuery holds the report search parameters
type ListQuery struct {
	ReportFilter
	Q     string `form:"q"`
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
}

// Response DTOs

type PaginatedReportsResponse struct {
	Reports    []*Report              `json:"reports"`
	Pagination *pagination.Pagination `json:"pagination"`
}

type PaginatedSightingsResponse struct {
	Sightings  []Sighting             `json:"sightings"`
	Pagination *pagination.Pagination `json:"pagination"`
}
