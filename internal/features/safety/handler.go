package safety

import (
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

// FlagReport godoc
// @Summary Flag a report
// @Description Flag a report as a scam, fake or inappropriate. One flag per user per report.
// @Tags safety
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param request body CreateFlagRequest true "Flag details"
// @Success 201 {object} response.APIResponse{data=Flag}
// @Failure 400 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /reports/{id}/flags [post]
func (h *Handler) FlagReport(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	reportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid report ID", "INVALID_ID")
		return
	}

	var req CreateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	flag, err := h.service.Flag(c.Request.Context(), user, reportID, &req)
	if err != nil {
		response.FromError(c, err, "Failed to flag report")
		return
	}

	response.Created(c, flag, "Report flagged")
}

// ListFlags godoc
// @Summary List flags
// @Description Moderators only
// @Tags safety
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, dismissed or actioned"
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Items per page (default 20, max 50)"
// @Success 200 {object} response.APIResponse{data=FlagListResponse}
// @Failure 403 {object} response.APIResponse
// @Router /flags [get]
func (h *Handler) ListFlags(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	var q FlagListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters", "INVALID_QUERY")
		return
	}

	flags, page, err := h.service.List(c.Request.Context(), user, q)
	if err != nil {
		response.FromError(c, err, "Failed to fetch flags")
		return
	}

	response.Success(c, FlagListResponse{Flags: flags, Pagination: page})
}

// ResolveFlag godoc
// @Summary Resolve a flag
// @Description Moderators only. "remove" deletes the flagged report.
// @Tags safety
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Flag ID"
// @Param request body ResolveFlagRequest true "Action"
// @Success 200 {object} response.APIResponse{data=ResolveResponse}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /flags/{id}/resolve [patch]
func (h *Handler) ResolveFlag(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid flag ID", "INVALID_ID")
		return
	}

	var req ResolveFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	out, err := h.service.Resolve(c.Request.Context(), user, id, req.Action)
	if err != nil {
		response.FromError(c, err, "Failed to resolve flag")
		return
	}

	response.Success(c, out, "Flag resolved")
}
