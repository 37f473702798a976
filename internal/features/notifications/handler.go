package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Inbox is the read side the handler needs
type Inbox interface {
	GetNotificationByID(ctx context.Context, id primitive.ObjectID) (*Notification, error)
	GetUserNotifications(ctx context.Context, userID primitive.ObjectID, query NotificationListQuery) ([]Notification, int64, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkAsRead(ctx context.Context, id primitive.ObjectID) error
	MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type Handler struct {
	repo Inbox
}

func NewHandler(repo Inbox) *Handler {
	return &Handler{repo: repo}
}

// ListNotifications godoc
// @Summary List notifications
// @Description Get paginated list of user's notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Items per page (default 20, max 50)"
// @Param unreadOnly query bool false "Only show unread"
// @Param kind query string false "match, message, reward, system or alert"
// @Success 200 {object} response.APIResponse{data=PaginatedNotificationsResponse}
// @Failure 401 {object} response.APIResponse
// @Router /notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	currentUser, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	var query NotificationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters", "INVALID_QUERY")
		return
	}

	if err := ValidateNotificationListQuery(&query); err != nil {
		response.BadRequest(c, err.Error(), "INVALID_QUERY")
		return
	}

	notifications, total, err := h.repo.GetUserNotifications(c.Request.Context(), currentUser.ID, query)
	if err != nil {
		response.InternalServerError(c, "Failed to fetch notifications", "FETCH_FAILED")
		return
	}

	response.Success(c, PaginatedNotificationsResponse{
		Notifications: notifications,
		Pagination:    pagination.New(query.Page, query.Limit, total),
	})
}

// GetUnreadCount godoc
// @Summary Get unread notification count
// @Description Get count of unread notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.APIResponse{data=UnreadCountResponse}
// @Failure 401 {object} response.APIResponse
// @Router /notifications/unread-count [get]
func (h *Handler) GetUnreadCount(c *gin.Context) {
	currentUser, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	count, err := h.repo.CountUnread(c.Request.Context(), currentUser.ID)
	if err != nil {
		response.InternalServerError(c, "Failed to count notifications", "COUNT_FAILED")
		return
	}

	response.Success(c, UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead godoc
// @Summary Mark notification as read
// @Description Mark a single notification as read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} response.APIResponse{data=MarkReadResponse}
// @Failure 400 {object} response.APIResponse
// @Failure 401 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /notifications/{id}/read [patch]
func (h *Handler) MarkAsRead(c *gin.Context) {
	currentUser, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	notificationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid notification ID", "INVALID_ID")
		return
	}

	// Get notification to verify ownership
	notification, err := h.repo.GetNotificationByID(c.Request.Context(), notificationID)
	if err != nil {
		response.FromError(c, err, "Notification not found")
		return
	}

	if notification.RecipientID != currentUser.ID {
		response.Forbidden(c, "Cannot mark others' notifications", "FORBIDDEN")
		return
	}

	if err := h.repo.MarkAsRead(c.Request.Context(), notificationID); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			response.NotFound(c, "Notification not found", "NOT_FOUND")
			return
		}
		response.InternalServerError(c, "Failed to mark as read", "UPDATE_FAILED")
		return
	}

	response.Success(c, MarkReadResponse{
		ID:     notificationID,
		IsRead: true,
	})
}

// MarkAllAsRead godoc
// @Summary Mark all notifications as read
// @Description Mark all user's notifications as read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.APIResponse{data=MarkAllReadResponse}
// @Failure 401 {object} response.APIResponse
// @Router /notifications/read-all [patch]
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	currentUser, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	count, err := h.repo.MarkAllAsRead(c.Request.Context(), currentUser.ID)
	if err != nil {
		response.InternalServerError(c, "Failed to mark all as read", "UPDATE_FAILED")
		return
	}

	response.Success(c, MarkAllReadResponse{MarkedCount: count})
}
