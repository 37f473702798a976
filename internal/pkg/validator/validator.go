package validator

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	speciesRegex   = regexp.MustCompile(`^[\p{L}][\p{L}\s\-']{0,39}$`)
	microchipRegex = regexp.MustCompile(`^[0-9A-Za-z]{9,15}$`)
	urlRegex       = regexp.MustCompile(`^https?:\/\/(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=]*)$`)
)

// IsValidReportType checks for "lost" or "found"
func IsValidReportType(t string) bool {
	return t == "lost" || t == "found"
}

// IsValidReportStatus checks for one of the report lifecycle states
func IsValidReportStatus(s string) bool {
	return s == "open" || s == "closed" || s == "reunited"
}

// IsValidSpecies checks if the species is a short run of letters
func IsValidSpecies(species string) bool {
	species = strings.TrimSpace(species)
	if species == "" {
		return false
	}
	return speciesRegex.MatchString(species)
}

// IsValidMicrochip checks the common 9 to 15 character chip formats
func IsValidMicrochip(id string) bool {
	return microchipRegex.MatchString(strings.TrimSpace(id))
}

// IsValidURL checks if the URL format is valid
func IsValidURL(url string) bool {
	if strings.TrimSpace(url) == "" {
		return false
	}
	return urlRegex.MatchString(url)
}

// Register adds the custom tags to v
func Register(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"reporttype": func(fl validator.FieldLevel) bool {
			return IsValidReportType(fl.Field().String())
		},
		"reportstatus": func(fl validator.FieldLevel) bool {
			return IsValidReportStatus(fl.Field().String())
		},
		"species": func(fl validator.FieldLevel) bool {
			return IsValidSpecies(fl.Field().String())
		},
		"microchip": func(fl validator.FieldLevel) bool {
			return IsValidMicrochip(fl.Field().String())
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// RegisterWithGin installs the custom tags on gin's binding engine
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not validator/v10")
	}
	return Register(v)
}

// FieldErrors flattens validation errors to field -> failed tag
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return out
	}
	for _, ve := range validationErrors {
		out[ve.Field()] = ve.Tag()
	}
	return out
}
