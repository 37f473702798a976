package reports

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/features/auth"
	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const streamPingInterval = 25 * time.Second

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateReport godoc
// @Summary File a lost or found report
// @Description Creates a report, resolves its location and starts matching in the background
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateReportRequest true "Report"
// @Success 201 {object} response.APIResponse{data=Report}
// @Failure 400 {object} response.APIResponse
// @Failure 401 {object} response.APIResponse
// @Failure 429 {object} response.APIResponse
// @Router /reports [post]
func (h *Handler) CreateReport(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}

	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	report, err := h.service.Create(c.Request.Context(), user, &req)
	if err != nil {
		response.FromError(c, err, "Failed to create report")
		return
	}

	response.Created(c, report, "Report created")
}

// GetReport godoc
// @Summary Get a report
// @Description Owners and moderators see true coordinates; everyone else sees the public view
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.APIResponse{data=Report}
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id} [get]
func (h *Handler) GetReport(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	viewer, _ := auth.CurrentUser(c)
	report, err := h.service.Get(c.Request.Context(), id, viewer)
	if err != nil {
		response.FromError(c, err, "Report not found")
		return
	}

	response.Success(c, report)
}

// ListReports godoc
// @Summary Search reports
// @Tags reports
// @Produce json
// @Param type query string false "lost or found"
// @Param status query string false "open, closed or reunited"
// @Param species query string false "Species"
// @Param q query string false "Free text; every word must match"
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Items per page (default 20, max 50)"
// @Success 200 {object} response.APIResponse{data=PaginatedReportsResponse}
// @Failure 400 {object} response.APIResponse
// @Router /reports [get]
func (h *Handler) ListReports(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters", "INVALID_QUERY")
		return
	}
	if err := ValidateListQuery(&q); err != nil {
		response.BadRequest(c, err.Error(), "INVALID_QUERY")
		return
	}

	viewer, _ := auth.CurrentUser(c)
	list, total, err := h.service.List(c.Request.Context(), q, viewer)
	if err != nil {
		response.InternalServerError(c, "Failed to fetch reports", "FETCH_FAILED")
		return
	}

	response.Success(c, PaginatedReportsResponse{
		Reports:    list,
		Pagination: pagination.New(q.Page, q.Limit, total),
	})
}

// UpdateReport godoc
// @Summary Edit a report
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param request body UpdateReportRequest true "Changes"
// @Success 200 {object} response.APIResponse{data=Report}
// @Failure 400 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id} [patch]
func (h *Handler) UpdateReport(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	report, err := h.service.Update(c.Request.Context(), user, id, &req)
	if err != nil {
		response.FromError(c, err, "Failed to update report")
		return
	}

	response.Success(c, report, "Report updated")
}

// UpdateStatus godoc
// @Summary Close or mark a report reunited
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} response.APIResponse{data=Report}
// @Failure 403 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /reports/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	report, err := h.service.UpdateStatus(c.Request.Context(), user, id, req.Status)
	if err != nil {
		response.FromError(c, err, "Failed to update status")
		return
	}

	response.Success(c, report, "Status updated")
}

// DeleteReport godoc
// @Summary Delete a report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Success 200 {object} response.APIResponse
// @Failure 403 {object} response.APIResponse
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id} [delete]
func (h *Handler) DeleteReport(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), user, id); err != nil {
		response.FromError(c, err, "Failed to delete report")
		return
	}

	response.Success(c, nil, "Report deleted")
}

// UploadPhoto godoc
// @Summary Upload a report photo
// @Description Replaces the report photo, detects labels and re-runs matching
// @Tags reports
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param file formData file true "Image"
// @Success 200 {object} response.APIResponse{data=Report}
// @Failure 400 {object} response.APIResponse
// @Failure 503 {object} response.APIResponse
// @Router /reports/{id}/photo [post]
func (h *Handler) UploadPhoto(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "File is required", "MISSING_FILE")
		return
	}
	defer file.Close()

	report, err := h.service.UploadPhoto(c.Request.Context(), user, id, file, header)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUpstream {
			response.Error(c, http.StatusBadGateway, "Failed to upload photo", "UPLOAD_FAILED")
			return
		}
		response.FromError(c, err, "Failed to upload photo")
		return
	}

	response.Success(c, report, "Photo updated")
}

// CreateSighting godoc
// @Summary Report a sighting
// @Description Records a sighting on an open report and alerts its owner
// @Tags reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Report ID"
// @Param request body CreateSightingRequest true "Sighting"
// @Success 201 {object} response.APIResponse{data=Sighting}
// @Failure 400 {object} response.APIResponse
// @Failure 409 {object} response.APIResponse
// @Router /reports/{id}/sightings [post]
func (h *Handler) CreateSighting(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "Authentication required", "UNAUTHORIZED")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req CreateSightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	sighting, err := h.service.AddSighting(c.Request.Context(), user, id, &req)
	if err != nil {
		response.FromError(c, err, "Failed to record sighting")
		return
	}

	response.Created(c, sighting, "Sighting recorded")
}

// ListSightings godoc
// @Summary List sightings for a report
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Items per page (default 20, max 50)"
// @Success 200 {object} response.APIResponse{data=PaginatedSightingsResponse}
// @Failure 404 {object} response.APIResponse
// @Router /reports/{id}/sightings [get]
func (h *Handler) ListSightings(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var q struct {
		Page  int `form:"page,default=1"`
		Limit int `form:"limit,default=20"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters", "INVALID_QUERY")
		return
	}
	q.Page, q.Limit = pagination.Normalize(q.Page, q.Limit, 50)

	list, total, err := h.service.ListSightings(c.Request.Context(), id, q.Page, q.Limit)
	if err != nil {
		response.FromError(c, err, "Failed to fetch sightings")
		return
	}

	response.Success(c, PaginatedSightingsResponse{
		Sightings:  list,
		Pagination: pagination.New(q.Page, q.Limit, total),
	})
}

// StreamReports godoc
// @Summary Live report changes
// @Description Server-sent events for report inserts, updates and deletes. Needs a replica set.
// @Tags reports
// @Produce text/event-stream
// @Param type query string false "lost or found"
// @Param status query string false "open, closed or reunited"
// @Param species query string false "Species"
// @Success 200 {object} ReportEvent
// @Failure 503 {object} response.APIResponse
// @Router /reports/stream [get]
func (h *Handler) StreamReports(c *gin.Context) {
	var filter ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", "INVALID_QUERY")
		return
	}

	events := make(chan ReportEvent, 16)
	ctx := c.Request.Context()

	stop, err := h.service.Subscribe(ctx, filter, func(ev ReportEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		default:
			// slow client, drop
		}
	})
	if err != nil {
		response.FromError(c, err, "Live updates are unavailable")
		return
	}
	defer stop()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(ev.Operation, ev)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func parseID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid report ID", "INVALID_ID")
		return primitive.NilObjectID, false
	}
	return id, true
}
