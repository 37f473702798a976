package vision

// LabelsRequest asks for labels on an image given by URL or base64 content
type LabelsRequest struct {
	ImageURL    string `json:"imageUrl" binding:"omitempty,url"`
	ImageBase64 string `json:"imageBase64"`
	MaxResults  int64  `json:"maxResults" binding:"omitempty,min=1,max=50"`
}

// Label is one detected label
type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// LabelsResponse is returned by POST /vision/labels. Available is false when
// no API key is configured.
type LabelsResponse struct {
	Available bool    `json:"available"`
	Labels    []Label `json:"labels"`
}
