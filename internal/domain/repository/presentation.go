package repository

import (
	"strings"

	"ShrimpCast/internal/domain/models"
)

// IsValidPresentation returns true if p is a supported presentation.
func IsValidPresentation(p models.Presentation) bool {
	switch p {
	case models.PresentationHeadless, models.PresentationWhole, models.PresentationLive:
		return true
	default:
		return false
	}
}

// DefaultPresentation returns the default presentation.
func DefaultPresentation() models.Presentation { return models.PresentationHeadless }

// NormalizePresentation converts raw input to a valid presentation (or default).
func NormalizePresentation(s string) models.Presentation {
	p := models.Presentation(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidPresentation(p) {
		return p
	}
	return DefaultPresentation()
}
