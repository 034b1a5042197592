package analytics

import "ShrimpCast/internal/domain/models"

// wholeCalibers maps the single-number calibers used for whole shrimp to the
// public caliber bucket they are priced against.
var wholeCalibers = map[string]string{
	"20": "16/20",
	"30": "26/30",
	"40": "36/40",
	"50": "41/50",
	"60": "51/60",
	"70": "61/70",
	"80": "71/90",
}

// PublicCaliberFor returns the public caliber a dispatch series is compared
// with. Calibers without an equivalence map to themselves.
func PublicCaliberFor(caliber string, p models.Presentation) string {
	if p == models.PresentationWhole {
		if pub, ok := wholeCalibers[caliber]; ok {
			return pub
		}
	}
	return caliber
}

// CaliberEquivalences returns a copy of the remap table per presentation.
func CaliberEquivalences() map[models.Presentation]map[string]string {
	whole := make(map[string]string, len(wholeCalibers))
	for k, v := range wholeCalibers {
		whole[k] = v
	}
	return map[models.Presentation]map[string]string{models.PresentationWhole: whole}
}
