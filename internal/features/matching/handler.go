package matching

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListMatches godoc
// @Summary List match candidates for a report
// @Description Stored candidates on either side of the report, score descending
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} response.APIResponse{data=MatchListResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id}/matches [get]
func (h *Handler) ListMatches(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c, "Invalid report ID")
	if !ok {
		return
	}

	list, err := h.service.ListForReport(c.Request.Context(), user, id)
	if err != nil {
		response.FromError(c, err, "Failed to fetch matches")
		return
	}

	response.Success(c, MatchListResponse{ReportID: id, Matches: list})
}

// RefreshMatches godoc
// @Summary Re-run matching for a report
// @Description Runs an auto-match pass synchronously and returns the stored candidates
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} response.APIResponse{data=MatchListResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id}/matches/refresh [post]
func (h *Handler) RefreshMatches(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c, "Invalid report ID")
	if !ok {
		return
	}

	pass, list, err := h.service.Refresh(c.Request.Context(), user, id)
	if err != nil {
		response.FromError(c, err, "Failed to refresh matches")
		return
	}

	message := "Matches refreshed"
	if pass.Skipped {
		message = "Report is not open; existing matches returned"
	}
	response.Success(c, MatchListResponse{ReportID: id, Matches: list}, message)
}

// AcceptMatch godoc
// @Summary Accept a match
// @Description Marks both reports reunited and rejects the other pending candidates on either report
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Match ID"
// @Success 200 {object} response.APIResponse{data=ReviewResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /matches/{id}/accept [patch]
func (h *Handler) AcceptMatch(c *gin.Context) {
	h.review(c, h.service.Accept, "Match accepted")
}

// RejectMatch godoc
// @Summary Reject a match
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Match ID"
// @Success 200 {object} response.APIResponse{data=ReviewResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /matches/{id}/reject [patch]
func (h *Handler) RejectMatch(c *gin.Context) {
	h.review(c, h.service.Reject, "Match rejected")
}

type reviewFunc func(ctx context.Context, user *auth.User, id primitive.ObjectID) (*ReviewResponse, error)

func (h *Handler) review(c *gin.Context, fn reviewFunc, message string) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c, "Invalid match ID")
	if !ok {
		return
	}

	res, err := fn(c.Request.Context(), user, id)
	if err != nil {
		response.FromError(c, err, "Failed to review match")
		return
	}

	response.Success(c, res, message)
}

func parseID(c *gin.Context, message string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, message, "INVALID_ID")
		return primitive.NilObjectID, false
	}
	return id, true
}
