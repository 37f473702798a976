package notifications

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the persistence the dispatcher writes to
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	MarkPushed(ctx context.Context, id primitive.ObjectID) error
}

// Recipients resolves users and their devices
type Recipients interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	RemoveFCMTokens(ctx context.Context, userID primitive.ObjectID, tokens []string) error
}

// PushSender delivers to devices. *messaging.Client satisfies it.
type PushSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Dispatcher persists in-app notifications and fans them out to push
type Dispatcher struct {
	store      Store
	recipients Recipients
	push       PushSender
	log        logrus.FieldLogger
}

// NewDispatcher builds a dispatcher. push may be nil.
func NewDispatcher(store Store, recipients Recipients, push PushSender, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{store: store, recipients: recipients, push: push, log: log}
}

// Notify delivers one notification to userID according to their preferences.
// Only a failure to persist the in-app record is returned; push problems are
// logged.
func (d *Dispatcher) Notify(ctx context.Context, userID primitive.ObjectID, kind string, payload Payload) error {
	if err := ValidatePayload(kind, payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	user, err := d.recipients.GetUserByID(ctx, userID.Hex())
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	prefs := user.NotificationPrefs
	if !prefs.Wants(kind) {
		return nil
	}

	n := &Notification{
		RecipientID: userID,
		Kind:        kind,
		Title:       payload.Title,
		Body:        payload.Body,
		ReportID:    payload.ReportID,
		MatchID:     payload.MatchID,
		Data:        payload.Data,
	}

	if prefs.InApp {
		if err := d.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
	}

	if prefs.Push && d.push != nil && len(user.FCMTokens) > 0 {
		if d.sendPush(ctx, user, kind, n) && !n.ID.IsZero() {
			if err := d.store.MarkPushed(ctx, n.ID); err != nil {
				logger.Module(d.log, "notifications", "Notify").Warn("mark pushed: " + err.Error())
			}
		}
	}

	return nil
}

// sendPush reports whether at least one device accepted the message
func (d *Dispatcher) sendPush(ctx context.Context, user *auth.User, kind string, n *Notification) bool {
	log := logger.Module(d.log, "notifications", "sendPush").WithField("userId", user.ID.Hex())

	data := map[string]string{"kind": kind}
	for k, v := range n.Data {
		data[k] = v
	}
	if n.ReportID != nil {
		data["reportId"] = n.ReportID.Hex()
	}
	if n.MatchID != nil {
		data["matchId"] = n.MatchID.Hex()
	}

	resp, err := d.push.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: user.FCMTokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
	})
	if err != nil {
		log.Warn("push failed: " + err.Error())
		return false
	}

	var stale []string
	for i, r := range resp.Responses {
		if r.Success || i >= len(user.FCMTokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) {
			stale = append(stale, user.FCMTokens[i])
		}
	}
	if len(stale) > 0 {
		if err := d.recipients.RemoveFCMTokens(ctx, user.ID, stale); err != nil {
			log.Warn("prune tokens: " + err.Error())
		}
	}

	return resp.SuccessCount > 0
}
