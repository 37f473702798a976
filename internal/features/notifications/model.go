package notifications

import (
	"time"

	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification kinds
const (
	KindMatch   = "match"
	KindMessage = "message"
	KindReward  = "reward"
	KindSystem  = "system"
	KindAlert   = "alert"
)

// ValidKind reports whether kind is one the dispatcher accepts
func ValidKind(kind string) bool {
	switch kind {
	case KindMatch, KindMessage, KindReward, KindSystem, KindAlert:
		return true
	}
	return false
}

// Payload is what callers hand to Notify
type Payload struct {
	Title    string              `json:"title"`
	Body     string              `json:"body"`
	ReportID *primitive.ObjectID `json:"reportId,omitempty"`
	MatchID  *primitive.ObjectID `json:"matchId,omitempty"`
	Data     map[string]string   `json:"data,omitempty"`
}

// Notification represents a persisted in-app notification
type Notification struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RecipientID primitive.ObjectID  `bson:"recipientId" json:"recipientId"`
	Kind        string              `bson:"kind" json:"kind"`
	Title       string              `bson:"title" json:"title"`
	Body        string              `bson:"body" json:"body"`
	ReportID    *primitive.ObjectID `bson:"reportId,omitempty" json:"reportId,omitempty"`
	MatchID     *primitive.ObjectID `bson:"matchId,omitempty" json:"matchId,omitempty"`
	Data        map[string]string   `bson:"data,omitempty" json:"data,omitempty"`
	IsRead      bool                `bson:"isRead" json:"isRead"`
	Pushed      bool                `bson:"pushed" json:"pushed"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}

// Request DTOs

type NotificationListQuery struct {
	Page       int    `form:"page,default=1" binding:"min=1"`
	Limit      int    `form:"limit,default=20" binding:"min=1,max=50"`
	UnreadOnly bool   `form:"unreadOnly"`
	Kind       string `form:"kind"`
}

// Response DTOs

type PaginatedNotificationsResponse struct {
	Notifications []Notification           `json:"notifications"`
	Pagination    *pagination.Pagination `json:"pagination"`
}

type UnreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

type MarkReadResponse struct {
	ID     primitive.ObjectID `json:"id"`
	IsRead bool               `json:"isRead"`
}

type MarkAllReadResponse struct {
	MarkedCount int64 `json:"markedCount"`
}
