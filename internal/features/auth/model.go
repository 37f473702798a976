package auth

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
)

// NotificationPrefs controls which channels a user is reached on. An empty
// Kinds list means every kind is delivered.
type NotificationPrefs struct {
	InApp bool     `bson:"inApp" json:"inApp"`
	Push  bool     `bson:"push" json:"push"`
	Email bool     `bson:"email" json:"email"`
	Kinds []string `bson:"kinds" json:"kinds"`
}

// DefaultNotificationPrefs is what a new account starts with
func DefaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{InApp: true, Push: true, Email: false, Kinds: []string{}}
}

// Wants reports whether kind passes the Kinds filter
func (p NotificationPrefs) Wants(kind string) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// User represents a registered user in the system
type User struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirebaseUID       string             `bson:"firebaseUid" json:"-"`
	Email             string             `bson:"email" json:"email"`
	DisplayName       string             `bson:"displayName" json:"displayName"`
	PhotoURL          string             `bson:"photoUrl" json:"photoUrl"`
	Role              string             `bson:"role" json:"role"`
	FCMTokens         []string           `bson:"fcmTokens" json:"-"`
	NotificationPrefs NotificationPrefs  `bson:"notificationPrefs" json:"notificationPrefs"`
	Language          string             `bson:"language" json:"language"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsModerator reports whether the user may act on other people's reports
func (u *User) IsModerator() bool {
	return u != nil && u.Role == RoleModerator
}

// FirebaseAuthRequest represents the payload for Firebase login
type FirebaseAuthRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// AuthResponse represents the response after successful authentication
type AuthResponse struct {
	User        *User     `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// UpdatePreferencesRequest represents the payload for notification settings.
// Nil fields are left unchanged.
type UpdatePreferencesRequest struct {
	InApp    *bool    `json:"inApp"`
	Push     *bool    `json:"push"`
	Email    *bool    `json:"email"`
	Kinds    []string `json:"kinds"`
	Language *string  `json:"language"`
}

// RegisterFCMTokenRequest represents a device push token registration
type RegisterFCMTokenRequest struct {
	Token string `json:"token" binding:"required,min=10,max=4096"`
}
