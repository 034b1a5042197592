package api

import (
	"regexp"

	models "ShrimpCast/internal/domain/models"
	"ShrimpCast/internal/domain/repository"
	xhttp "ShrimpCast/pkg/http"

	"github.com/go-playground/validator/v10"
)

// caliberPattern accepts count ranges like "16/20" and the single counts
// used for whole shrimp like "40".
var caliberPattern = regexp.MustCompile(`^[0-9]{1,3}(/[0-9]{1,3})?$`)

func init() {
	xhttp.RegisterValidation("caliber", func(fl validator.FieldLevel) bool {
		return caliberPattern.MatchString(fl.Field().String())
	}, "%[1]s must be a count range like 16/20")
	xhttp.RegisterValidation("presentation", func(fl validator.FieldLevel) bool {
		return repository.IsValidPresentation(models.Presentation(fl.Field().String()))
	}, "%[1]s must be one of: HEADLESS, WHOLE, LIVE")
}
