package safety

import (
	"time"

	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Flag statuses
const (
	StatusPending   = "pending"
	StatusDismissed = "dismissed"
	StatusActioned  = "actioned"
)

// Resolve actions
const (
	ActionDismiss = "dismiss"
	ActionRemove  = "remove"
)

// Flag reasons
const (
	ReasonScam          = "scam"
	ReasonFake          = "fake"
	ReasonInappropriate = "inappropriate"
	ReasonOther         = "other"
)

// Flag is a user's complaint about a report, e.g. a reward that looks like
// a scam. A user can flag a given report once.
type Flag struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ReporterID primitive.ObjectID  `bson:"reporterId" json:"reporterId"`
	ReportID   primitive.ObjectID  `bson:"reportId" json:"reportId"`
	Reason     string              `bson:"reason" json:"reason"`
	Details    string              `bson:"details,omitempty" json:"details,omitempty"`
	Status     string              `bson:"status" json:"status"`
	ReviewedBy *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

type CreateFlagRequest struct {
	Reason  string `json:"reason" binding:"required,oneof=scam fake inappropriate other"`
	Details string `json:"details" binding:"max=500"`
}

type ResolveFlagRequest struct {
	Action string `json:"action" binding:"required,oneof=dismiss remove"`
}

type FlagListQuery struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

type FlagListResponse struct {
	Flags      []Flag                 `json:"flags"`
	Pagination *pagination.Pagination `json:"pagination"`
}

// ResolveResponse is the reviewed flag plus how many other pending flags on
// the same report were closed with it
type ResolveResponse struct {
	Flag          *Flag `json:"flag"`
	AlsoResolved  int64 `json:"alsoResolved"`
	ReportRemoved bool  `json:"reportRemoved"`
}
