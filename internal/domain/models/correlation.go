package models

import (
	"fmt"
	"time"
)

type CorrelationQuality string

const (
	QualityExcellent CorrelationQuality = "excellent"
	QualityGood      CorrelationQuality = "good"
	QualityModerate  CorrelationQuality = "moderate"
	QualityWeak      CorrelationQuality = "weak"
)

// CorrelationModel is the fitted relation dispatch = Intercept + Slope*public
// for one (caliber, presentation).
type CorrelationModel struct {
	ID             string       `json:"id"`
	Caliber        string       `json:"caliber"`
	PublicCaliber  string       `json:"public_caliber"`
	Presentation   Presentation `json:"presentation"`
	Slope          float64      `json:"slope"`
	Intercept      float64      `json:"intercept"`
	RSquared       float64      `json:"r_squared"`
	PearsonR       float64      `json:"pearson_r"`
	PValue         float64      `json:"p_value"`
	ResidualStdDev float64      `json:"residual_stddev"`
	SampleCount    int          `json:"sample_count"`
	RatioMean      float64      `json:"ratio_mean"`
	RatioStdDev    float64      `json:"ratio_stddev"`
	LookbackDays   int          `json:"lookback_days"`
	ComputedOn     time.Time    `json:"computed_on"`
	ComputedAt     time.Time    `json:"computed_at"`
}

// Quality classifies the fit for display only.
func (m CorrelationModel) Quality() CorrelationQuality {
	switch {
	case m.RSquared > 0.9:
		return QualityExcellent
	case m.RSquared > 0.7:
		return QualityGood
	case m.RSquared > 0.5:
		return QualityModerate
	default:
		return QualityWeak
	}
}

func (m CorrelationModel) Formula() string {
	return fmt.Sprintf("dispatch = %.4f + %.4f * public", m.Intercept, m.Slope)
}

// CorrelationView is the transport shape of a model with derived fields.
type CorrelationView struct {
	CorrelationModel
	Quality CorrelationQuality `json:"quality"`
	Formula string             `json:"formula"`
}

func (m CorrelationModel) View() CorrelationView {
	return CorrelationView{CorrelationModel: m, Quality: m.Quality(), Formula: m.Formula()}
}
