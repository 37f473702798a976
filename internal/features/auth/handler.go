package auth

import (
	"context"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/config"
	idToken "github.com/xyz-asif/rewardz/internal/pkg/jwt"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TokenVerifier checks Firebase ID tokens. *fbauth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Store is the persistence the handler depends on
type Store interface {
	UserLoader
	UpsertFirebaseUser(ctx context.Context, uid, email, displayName, photoURL string) (*User, error)
	UpdatePreferences(ctx context.Context, userID primitive.ObjectID, req *UpdatePreferencesRequest) (*User, error)
	AddFCMToken(ctx context.Context, userID primitive.ObjectID, token string) error
}

type Handler struct {
	repo     Store
	verifier TokenVerifier
	cfg      *config.Config
	jwtCfg   *idToken.Config
	log      logrus.FieldLogger
}

// NewHandler builds the auth handler. verifier may be nil, in which case
// login answers 503.
func NewHandler(repo Store, verifier TokenVerifier, cfg *config.Config, log logrus.FieldLogger) *Handler {
	jwtCfg := idToken.DefaultConfig(cfg.JWTSecret)
	if cfg.JWTExpire > 0 {
		jwtCfg.AccessExpiry = time.Duration(cfg.JWTExpire) * time.Hour
	}
	return &Handler{
		repo:     repo,
		verifier: verifier,
		cfg:      cfg,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

// FirebaseLogin godoc
// @Summary Sign in with Firebase
// @Description Exchange a Firebase ID token for an API access token. Creates the user on first login.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body FirebaseAuthRequest true "Firebase ID token"
// @Success 200 {object} response.APIResponse{data=AuthResponse}
// @Failure 400 {object} response.APIResponse
// @Failure 401 {object} response.APIResponse
// @Failure 503 {object} response.APIResponse
// @Router /auth/firebase [post]
func (h *Handler) FirebaseLogin(c *gin.Context) {
	if h.verifier == nil {
		response.ServiceUnavailable(c, "Sign-in is not configured", "AUTH_UNAVAILABLE")
		return
	}

	var req FirebaseAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	token, err := h.verifier.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		logger.Module(h.log, "auth", "FirebaseLogin").Info("rejected id token: " + err.Error())
		response.Unauthorized(c, "Invalid Firebase token", "INVALID_ID_TOKEN")
		return
	}

	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	picture, _ := token.Claims["picture"].(string)

	user, err := h.repo.UpsertFirebaseUser(c.Request.Context(), token.UID, email, name, picture)
	if err != nil {
		logger.LogError(h.log, "auth", "FirebaseLogin", "upsert user", map[string]string{"uid": token.UID}, err)
		response.DatabaseError(c, "Failed to save user")
		return
	}

	accessToken, err := idToken.GenerateToken(user.ID.Hex(), user.Email, user.Role, h.jwtCfg)
	if err != nil {
		response.InternalServerError(c, "Failed to generate token", "TOKEN_FAILED")
		return
	}

	expiresAt, err := idToken.GetTokenExpiry(accessToken, h.jwtCfg.Secret)
	if err != nil {
		response.InternalServerError(c, "Failed to generate token", "TOKEN_FAILED")
		return
	}

	response.Success(c, AuthResponse{User: user, AccessToken: accessToken, ExpiresAt: expiresAt})
}

// GetMe godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.APIResponse{data=User}
// @Failure 401 {object} response.APIResponse
// @Router /auth/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	response.Success(c, user)
}

// UpdatePreferences godoc
// @Summary Update notification preferences
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} response.APIResponse{data=User}
// @Failure 400 {object} response.APIResponse
// @Failure 401 {object} response.APIResponse
// @Router /auth/me/preferences [patch]
func (h *Handler) UpdatePreferences(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}
	if err := ValidatePreferences(&req); err != nil {
		response.BadRequest(c, err.Error(), "INVALID_PREFERENCES")
		return
	}

	updated, err := h.repo.UpdatePreferences(c.Request.Context(), user.ID, &req)
	if err != nil {
		response.FromError(c, err, "Failed to update preferences")
		return
	}

	response.Success(c, updated)
}

// RegisterFCMToken godoc
// @Summary Register a push token
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterFCMTokenRequest true "Device token"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.APIResponse
// @Failure 401 {object} response.APIResponse
// @Router /auth/me/fcm-tokens [post]
func (h *Handler) RegisterFCMToken(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	var req RegisterFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}
	if err := ValidateFCMToken(req.Token); err != nil {
		response.BadRequest(c, err.Error(), "INVALID_TOKEN")
		return
	}

	if err := h.repo.AddFCMToken(c.Request.Context(), user.ID, req.Token); err != nil {
		response.FromError(c, err, "Failed to register token")
		return
	}

	response.Success(c, gin.H{"registered": true})
}
