package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memStore struct {
	mu     sync.Mutex
	items  []Notification
	pushed map[primitive.ObjectID]bool
	fail   error
}

func newMemStore() *memStore {
	return &memStore{pushed: map[primitive.ObjectID]bool{}}
}

func (m *memStore) CreateNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	n.ID = primitive.NewObjectID()
	m.items = append(m.items, *n)
	return nil
}

func (m *memStore) MarkPushed(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed[id] = true
	return nil
}

func (m *memStore) GetNotificationByID(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			return &m.items[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memStore) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, q NotificationListQuery) ([]Notification, int64, error) {
	out := []Notification{}
	for _, n := range m.items {
		if n.RecipientID == userID && (!q.UnreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memStore) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var c int64
	for _, n := range m.items {
		if n.RecipientID == userID && !n.IsRead {
			c++
		}
	}
	return c, nil
}

func (m *memStore) MarkAsRead(ctx context.Context, id primitive.ObjectID) error {
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].IsRead = true
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memStore) MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var c int64
	for i := range m.items {
		if m.items[i].RecipientID == userID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			c++
		}
	}
	return c, nil
}

type memUsers struct {
	users   map[primitive.ObjectID]*auth.User
	removed []string
}

func (m *memUsers) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	oid, _ := primitive.ObjectIDFromHex(id)
	if u, ok := m.users[oid]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memUsers) RemoveFCMTokens(ctx context.Context, id primitive.ObjectID, tokens []string) error {
	m.removed = append(m.removed, tokens...)
	return nil
}

type fakePush struct {
	sent []*messaging.MulticastMessage
	err  error
}

func (f *fakePush) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return nil, f.err
	}
	resps := make([]*messaging.SendResponse, len(msg.Tokens))
	for i := range resps {
		resps[i] = &messaging.SendResponse{Success: true, MessageID: "m"}
	}
	return &messaging.BatchResponse{SuccessCount: len(msg.Tokens), Responses: resps}, nil
}

func newUser(prefs auth.NotificationPrefs, tokens ...string) *auth.User {
	return &auth.User{ID: primitive.NewObjectID(), Role: auth.RoleUser, NotificationPrefs: prefs, FCMTokens: tokens}
}

func TestNotify_PersistsAndPushes(t *testing.T) {
	store := newMemStore()
	push := &fakePush{}
	u := newUser(auth.DefaultNotificationPrefs(), "device-a")
	users := &memUsers{users: map[primitive.ObjectID]*auth.User{u.ID: u}}
	d := NewDispatcher(store, users, push, logger.Discard())

	reportID := primitive.NewObjectID()
	err := d.Notify(context.Background(), u.ID, KindMatch, Payload{Title: "Possible match", Body: "A found cat looks like yours", ReportID: &reportID})
	require.NoError(t, err)

	require.Len(t, store.items, 1)
	require.Equal(t, KindMatch, store.items[0].Kind)
	require.Equal(t, &reportID, store.items[0].ReportID)
	require.True(t, store.pushed[store.items[0].ID])

	require.Len(t, push.sent, 1)
	require.Equal(t, []string{"device-a"}, push.sent[0].Tokens)
	require.Equal(t, "match", push.sent[0].Data["kind"])
	require.Equal(t, reportID.Hex(), push.sent[0].Data["reportId"])
}

func TestNotify_RespectsPreferences(t *testing.T) {
	store := newMemStore()
	push := &fakePush{}

	muted := newUser(auth.NotificationPrefs{InApp: true, Push: true, Kinds: []string{KindAlert}}, "device-a")
	noPush := newUser(auth.NotificationPrefs{InApp: true, Push: false}, "device-b")
	users := &memUsers{users: map[primitive.ObjectID]*auth.User{muted.ID: muted, noPush.ID: noPush}}
	d := NewDispatcher(store, users, push, nil)

	require.NoError(t, d.Notify(context.Background(), muted.ID, KindMatch, Payload{Title: "x"}))
	require.Empty(t, store.items)
	require.Empty(t, push.sent)

	require.NoError(t, d.Notify(context.Background(), noPush.ID, KindAlert, Payload{Title: "Sighting"}))
	require.Len(t, store.items, 1)
	require.Empty(t, push.sent)
}

func TestNotify_PushFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	push := &fakePush{err: errors.New("fcm down")}
	u := newUser(auth.DefaultNotificationPrefs(), "device-a")
	d := NewDispatcher(store, &memUsers{users: map[primitive.ObjectID]*auth.User{u.ID: u}}, push, nil)

	require.NoError(t, d.Notify(context.Background(), u.ID, KindSystem, Payload{Title: "Welcome"}))
	require.Len(t, store.items, 1)
	require.False(t, store.pushed[store.items[0].ID])
}

func TestNotify_Errors(t *testing.T) {
	store := newMemStore()
	u := newUser(auth.DefaultNotificationPrefs())
	users := &memUsers{users: map[primitive.ObjectID]*auth.User{u.ID: u}}
	d := NewDispatcher(store, users, nil, nil)

	err := d.Notify(context.Background(), u.ID, "carrier-pigeon", Payload{Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	err = d.Notify(context.Background(), primitive.NewObjectID(), KindMatch, Payload{Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	store.fail = errors.New("disk full")
	err = d.Notify(context.Background(), u.ID, KindMatch, Payload{Title: "x"})
	require.Error(t, err)
}

func TestHandler_MarkAsReadOwnership(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	owner := newUser(auth.DefaultNotificationPrefs())
	other := newUser(auth.DefaultNotificationPrefs())
	n := &Notification{RecipientID: owner.ID, Kind: KindAlert, Title: "Sighting"}
	require.NoError(t, store.CreateNotification(context.Background(), n))

	h := NewHandler(store)
	as := func(u *auth.User) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set("user", u); c.Next() }
	}

	r := gin.New()
	r.PATCH("/other/:id/read", as(other), h.MarkAsRead)
	r.PATCH("/owner/:id/read", as(owner), h.MarkAsRead)
	r.GET("/owner/unread", as(owner), h.GetUnreadCount)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/other/"+n.ID.Hex()+"/read", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/owner/"+n.ID.Hex()+"/read", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/owner/unread", nil))
	var body struct {
		Data UnreadCountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Zero(t, body.Data.UnreadCount)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/owner/not-an-id/read", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateNotificationListQuery(t *testing.T) {
	q := NotificationListQuery{Page: 0, Limit: 500, Kind: " Match "}
	require.NoError(t, ValidateNotificationListQuery(&q))
	require.Equal(t, 1, q.Page)
	require.Equal(t, 50, q.Limit)
	require.Equal(t, KindMatch, q.Kind)

	require.Error(t, ValidateNotificationListQuery(&NotificationListQuery{Kind: "spam"}))
}
