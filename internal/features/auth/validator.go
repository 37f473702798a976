package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// notification kinds a user can subscribe to
var knownKinds = map[string]bool{
	"match":   true,
	"message": true,
	"reward":  true,
	"system":  true,
	"alert":   true,
}

var languageRegex = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// ValidatePreferences checks the notification settings payload
func ValidatePreferences(req *UpdatePreferencesRequest) error {
	if req.InApp == nil && req.Push == nil && req.Email == nil && req.Kinds == nil && req.Language == nil {
		return errors.New("at least one preference must be provided")
	}

	for i, k := range req.Kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if !knownKinds[k] {
			return fmt.Errorf("unknown notification kind %q", k)
		}
		req.Kinds[i] = k
	}

	if req.Language != nil {
		lang := strings.TrimSpace(*req.Language)
		if !languageRegex.MatchString(lang) {
			return errors.New("language must look like \"en\" or \"en-US\"")
		}
		req.Language = &lang
	}

	return nil
}

// ValidateFCMToken checks a device token before it is stored
func ValidateFCMToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	if strings.ContainsAny(token, " \t\n") {
		return errors.New("token must not contain whitespace")
	}
	return nil
}
