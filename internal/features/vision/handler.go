package vision

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xyz-asif/rewardz/internal/pkg/response"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
)

type Handler struct {
	labeler *Labeler
}

func NewHandler(labeler *Labeler) *Handler {
	return &Handler{labeler: labeler}
}

// DetectLabels godoc
// @Summary Detect photo labels
// @Description Runs label detection on a pet photo. Without an API key the response has available=false and no labels.
// @Tags vision
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LabelsRequest true "Image"
// @Success 200 {object} response.APIResponse{data=LabelsResponse}
// @Failure 400 {object} response.APIResponse
// @Failure 502 {object} response.APIResponse
// @Router /vision/labels [post]
func (h *Handler) DetectLabels(c *gin.Context) {
	var req LabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindJSONError(c, err)
		return
	}

	if !h.labeler.Available() {
		response.Success(c, LabelsResponse{Available: false, Labels: []Label{}})
		return
	}

	labels, err := h.labeler.Detect(c.Request.Context(), req.ImageURL, req.ImageBase64, req.MaxResults)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			response.BadRequest(c, err.Error(), "INVALID_IMAGE")
			return
		}
		response.Error(c, http.StatusBadGateway, "Label detection failed", "VISION_FAILED")
		return
	}

	response.Success(c, LabelsResponse{Available: true, Labels: labels})
}
