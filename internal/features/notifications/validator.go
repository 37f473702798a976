package notifications

import (
	"fmt"
	"strings"

	"github.com/xyz-asif/rewardz/internal/pkg/pagination"
)

func ValidateNotificationListQuery(query *NotificationListQuery) error {
	query.Page, query.Limit = pagination.Normalize(query.Page, query.Limit, 50)

	query.Kind = strings.ToLower(strings.TrimSpace(query.Kind))
	if query.Kind != "" && !ValidKind(query.Kind) {
		return fmt.Errorf("unknown notification kind %q", query.Kind)
	}

	return nil
}

// ValidatePayload checks what a caller hands to Notify
func ValidatePayload(kind string, p Payload) error {
	if !ValidKind(kind) {
		return fmt.Errorf("unknown notification kind %q", kind)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("notification title is required")
	}
	if len(p.Title) > 200 {
		return fmt.Errorf("notification title is too long")
	}
	return nil
}
