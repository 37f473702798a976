package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xyz-asif/rewardz/internal/pkg/logger"
	apperrors "github.com/xyz-asif/rewardz/pkg/errors"
	"google.golang.org/api/option"
	vapi "google.golang.org/api/vision/v1"
)

const (
	defaultMaxResults = 10
	minScore          = 0.6
)

// Labeler wraps label detection. A Labeler without an API key is valid and
// reports itself unavailable.
type Labeler struct {
	svc     *vapi.Service
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewLabeler builds a labeler. An empty apiKey gives an unavailable labeler.
// Extra client options are appended after the key.
func NewLabeler(ctx context.Context, apiKey string, timeout time.Duration, log logrus.FieldLogger, opts ...option.ClientOption) (*Labeler, error) {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := &Labeler{timeout: timeout, log: log}
	if apiKey == "" {
		return l, nil
	}

	svc, err := vapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	l.svc = svc
	return l, nil
}

// Available reports whether label detection is configured
func (l *Labeler) Available() bool {
	return l != nil && l.svc != nil
}

// Detect runs label detection on an image URL or base64 content
func (l *Labeler) Detect(ctx context.Context, imageURL, content string, maxResults int64) ([]Label, error) {
	if !l.Available() {
		return []Label{}, nil
	}
	if imageURL == "" && content == "" {
		return nil, fmt.Errorf("%w: imageUrl or imageBase64 is required", apperrors.ErrValidation)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	img := &vapi.Image{Content: content}
	if imageURL != "" {
		img = &vapi.Image{Source: &vapi.ImageSource{ImageUri: imageURL}}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.svc.Images.Annotate(&vapi.BatchAnnotateImagesRequest{
		Requests: []*vapi.AnnotateImageRequest{{
			Image:    img,
			Features: []*vapi.Feature{{Type: "LABEL_DETECTION", MaxResults: maxResults}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.E(apperrors.KindTimeout, "vision.annotate", err)
		}
		return nil, apperrors.E(apperrors.KindUpstream, "vision.annotate", err)
	}
	if len(resp.Responses) == 0 {
		return []Label{}, nil
	}
	if st := resp.Responses[0].Error; st != nil {
		return nil, apperrors.E(apperrors.KindUpstream, "vision.annotate", errors.New(st.Message))
	}

	labels := make([]Label, 0, len(resp.Responses[0].LabelAnnotations))
	for _, a := range resp.Responses[0].LabelAnnotations {
		labels = append(labels, Label{Description: a.Description, Score: a.Score})
	}
	return labels, nil
}

// Labels returns the lowercase descriptions of confident labels for an image
// URL. It is the form report scoring consumes.
func (l *Labeler) Labels(ctx context.Context, imageURL string) ([]string, error) {
	labels, err := l.Detect(ctx, imageURL, "", defaultMaxResults)
	if err != nil {
		logger.Module(l.log, "vision", "Labels").
			WithField("kind", apperrors.KindOf(err)).
			Warn(err.Error())
		return nil, err
	}

	out := []string{}
	seen := map[string]bool{}
	for _, lb := range labels {
		d := strings.ToLower(strings.TrimSpace(lb.Description))
		if lb.Score < minScore || d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}
