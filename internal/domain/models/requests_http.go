package models

// Requests for the forecasting HTTP endpoints. Defaults are applied with
// creasty/defaults after binding, then the struct is validated.

type PublicForecastRequest struct {
	Caliber  string `query:"caliber" json:"caliber" validate:"required,caliber"`
	Days     *int   `query:"days" json:"days" default:"30" validate:"required,gte=0,lte=365"`
	Lookback int    `query:"lookback" json:"lookback" default:"90" validate:"gte=7,lte=730"`
}

// PublicSeriesRequest selects a date range of the public price. Empty bounds
// default to the service lookback ending today.
type PublicSeriesRequest struct {
	Caliber string `query:"caliber" json:"caliber" validate:"required,caliber"`
	From    string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type DispatchForecastRequest struct {
	Caliber      string `query:"caliber" json:"caliber" validate:"required,caliber"`
	Presentation string `query:"presentation" json:"presentation" default:"HEADLESS" validate:"presentation"`
	Days         *int   `query:"days" json:"days" default:"30" validate:"required,gte=0,lte=365"`
	Lookback     int    `query:"lookback" json:"lookback" default:"90" validate:"gte=7,lte=730"`
}

type CorrelationRequest struct {
	Caliber      string `query:"caliber" json:"caliber" validate:"required,caliber"`
	Presentation string `query:"presentation" json:"presentation" default:"HEADLESS" validate:"presentation"`
	Lookback     int    `query:"lookback" json:"lookback" default:"90" validate:"gte=7,lte=730"`
}

type CorrelationQuery struct {
	Caliber      string `query:"caliber" validate:"required,caliber"`
	Presentation string `query:"presentation" default:"HEADLESS" validate:"presentation"`
	Limit        int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type CorrelationKey struct {
	Caliber      string `json:"caliber" validate:"required,caliber"`
	Presentation string `json:"presentation" validate:"required,presentation"`
}

type RecomputeRequest struct {
	Keys     []CorrelationKey `json:"keys" validate:"required,min=1,max=100,dive"`
	Lookback int              `json:"lookback" default:"90" validate:"gte=7,lte=730"`
}

type PurchaseQuoteRequest struct {
	Caliber      string `query:"caliber" validate:"required,caliber"`
	Presentation string `query:"presentation" default:"HEADLESS" validate:"presentation"`
	Days         *int   `query:"days" default:"30" validate:"required,gte=0,lte=365"`
}

type ReportRequest struct {
	Caliber      string `query:"caliber" validate:"required,caliber"`
	Presentation string `query:"presentation" default:"HEADLESS" validate:"presentation"`
}

type SpreadRequest struct {
	Caliber       string  `query:"caliber" validate:"required,caliber"`
	Presentation  string  `query:"presentation" default:"HEADLESS" validate:"presentation"`
	DispatchPrice float64 `query:"dispatch_price" validate:"gt=0"`
}

type BatchForecastRequest struct {
	Calibers      []string `json:"calibers" validate:"required,min=1,max=50,dive,caliber"`
	Presentations []string `json:"presentations" validate:"required,min=1,max=3,dive,presentation"`
	Days          *int     `json:"days" default:"30" validate:"required,gte=0,lte=365"`
}

type QuoteInput struct {
	Price   float64 `json:"price"`
	Samples int     `json:"samples"`
}

type ConsolidateRequest struct {
	Date       string                           `json:"date" validate:"required,datetime=2006-01-02"`
	Quotes     map[string]map[string]QuoteInput `json:"quotes"`
	UnitValues map[string]float64               `json:"unit_values"`
}

type DispatchPriceRequest struct {
	Caliber      string  `json:"caliber" validate:"required,caliber"`
	Presentation string  `json:"presentation" validate:"required,presentation"`
	Date         string  `json:"date" validate:"required,datetime=2006-01-02"`
	Price        float64 `json:"price" validate:"gt=0"`
	Origin       string  `json:"origin" default:"EXPORQUILSA"`
}

// ToSourceQuotes converts the request body into consolidation input.
func (r *ConsolidateRequest) ToSourceQuotes() SourceQuotes {
	out := SourceQuotes{
		PerCaliber: make(map[string]map[string]SourceQuote, len(r.Quotes)),
		UnitValues: r.UnitValues,
	}
	for src, byCal := range r.Quotes {
		m := make(map[string]SourceQuote, len(byCal))
		for cal, q := range byCal {
			m[cal] = SourceQuote{Price: q.Price, Samples: q.Samples}
		}
		out.PerCaliber[src] = m
	}
	return out
}
