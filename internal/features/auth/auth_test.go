package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xyz-asif/rewardz/internal/config"
	idToken "github.com/xyz-asif/rewardz/internal/pkg/jwt"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	users  map[string]*User
	tokens []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*User{}}
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeStore) UpsertFirebaseUser(ctx context.Context, uid, email, name, photo string) (*User, error) {
	for _, u := range f.users {
		if u.FirebaseUID == uid {
			u.Email, u.DisplayName, u.PhotoURL = email, name, photo
			return u, nil
		}
	}
	u := &User{ID: primitive.NewObjectID(), FirebaseUID: uid, Email: email, DisplayName: name, Role: RoleUser, NotificationPrefs: DefaultNotificationPrefs()}
	f.users[u.ID.Hex()] = u
	return u, nil
}

func (f *fakeStore) UpdatePreferences(ctx context.Context, id primitive.ObjectID, req *UpdatePreferencesRequest) (*User, error) {
	u, ok := f.users[id.Hex()]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if req.Push != nil {
		u.NotificationPrefs.Push = *req.Push
	}
	if req.Kinds != nil {
		u.NotificationPrefs.Kinds = req.Kinds
	}
	return u, nil
}

func (f *fakeStore) AddFCMToken(ctx context.Context, id primitive.ObjectID, token string) error {
	f.tokens = append(f.tokens, token)
	return nil
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyIDToken(ctx context.Context, tok string) (*fbauth.Token, error) {
	if tok != "good-token" {
		return nil, errors.New("bad token")
	}
	return &fbauth.Token{UID: "fb-1", Claims: map[string]interface{}{"email": "amina@example.com", "name": "Amina"}}, nil
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpire: 1}
}

func newRouter(store *fakeStore, verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	h := NewHandler(store, verifier, cfg, logger.Discard())

	r := gin.New()
	r.POST("/auth/firebase", h.FirebaseLogin)
	me := r.Group("/auth/me", NewAuthMiddleware(store, cfg))
	me.GET("", h.GetMe)
	me.PATCH("/preferences", h.UpdatePreferences)
	me.POST("/fcm-tokens", h.RegisterFCMToken)
	return r
}

func do(r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestFirebaseLogin_IssuesToken(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, fakeVerifier{})

	w, body := do(r, http.MethodPost, "/auth/firebase", "", FirebaseAuthRequest{IDToken: "good-token"})
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	token := data["accessToken"].(string)
	claims, err := idToken.ValidateToken(token, "test-secret")
	require.NoError(t, err)
	require.Equal(t, RoleUser, claims.Role)

	// testConfig sets a one hour expiry
	expiresAt, err := time.Parse(time.RFC3339, data["expiresAt"].(string))
	require.NoError(t, err)
	require.True(t, expiresAt.Equal(claims.ExpiresAt.Time))
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	w, body = do(r, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "amina@example.com", body["data"].(map[string]any)["email"])
}

func TestFirebaseLogin_RejectsBadToken(t *testing.T) {
	r := newRouter(newFakeStore(), fakeVerifier{})
	w, _ := do(r, http.MethodPost, "/auth/firebase", "", FirebaseAuthRequest{IDToken: "forged"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFirebaseLogin_UnavailableWithoutFirebase(t *testing.T) {
	r := newRouter(newFakeStore(), nil)
	w, body := do(r, http.MethodPost, "/auth/firebase", "", FirebaseAuthRequest{IDToken: "good-token"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "AUTH_UNAVAILABLE", body["code"])
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	r := newRouter(newFakeStore(), fakeVerifier{})

	w, body := do(r, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "AUTH_REQUIRED", body["code"])

	w, body = do(r, http.MethodGet, "/auth/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_TOKEN", body["code"])

	orphan, err := idToken.GenerateToken(primitive.NewObjectID().Hex(), "", RoleUser, idToken.DefaultConfig("test-secret"))
	require.NoError(t, err)
	w, body = do(r, http.MethodGet, "/auth/me", orphan, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "USER_NOT_FOUND", body["code"])
}

func TestPreferencesAndTokens(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, fakeVerifier{})
	_, body := do(r, http.MethodPost, "/auth/firebase", "", FirebaseAuthRequest{IDToken: "good-token"})
	token := body["data"].(map[string]any)["accessToken"].(string)

	off := false
	w, body := do(r, http.MethodPatch, "/auth/me/preferences", token, UpdatePreferencesRequest{Push: &off, Kinds: []string{"Match", "alert"}})
	require.Equal(t, http.StatusOK, w.Code)
	prefs := body["data"].(map[string]any)["notificationPrefs"].(map[string]any)
	require.Equal(t, false, prefs["push"])
	require.Equal(t, []any{"match", "alert"}, prefs["kinds"])

	w, _ = do(r, http.MethodPatch, "/auth/me/preferences", token, UpdatePreferencesRequest{Kinds: []string{"spam"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(r, http.MethodPost, "/auth/me/fcm-tokens", token, RegisterFCMTokenRequest{Token: "device-token-123"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"device-token-123"}, store.tokens)
}

func TestNotificationPrefs_Wants(t *testing.T) {
	all := DefaultNotificationPrefs()
	require.True(t, all.Wants("match"))

	some := NotificationPrefs{Kinds: []string{"alert"}}
	require.True(t, some.Wants("alert"))
	require.False(t, some.Wants("match"))
}

func TestValidatePreferences(t *testing.T) {
	require.Error(t, ValidatePreferences(&UpdatePreferencesRequest{}))

	lang := "sw-KE"
	require.NoError(t, ValidatePreferences(&UpdatePreferencesRequest{Language: &lang}))

	bad := "Swahili"
	require.Error(t, ValidatePreferences(&UpdatePreferencesRequest{Language: &bad}))
}
