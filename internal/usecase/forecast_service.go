package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	domsvc "ShrimpCast/internal/domain/service"
	"ShrimpCast/internal/services/analytics"
	"ShrimpCast/pkg/cache"
	pkgkafka "ShrimpCast/pkg/kafka"
	"ShrimpCast/pkg/logger"
	"ShrimpCast/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ForecastService loads series snapshots from the store and runs the
// forecasting core on them. The core never touches the store itself.
type ForecastService struct {
	deps
	store     domrepo.Store
	trend     domsvc.TrendForecaster
	fitter    domsvc.CorrelationFitter
	composer  domsvc.DispatchComposer
	optimizer domsvc.PurchaseOptimizer
}

func NewForecastService(
	store domrepo.Store,
	trend domsvc.TrendForecaster,
	fitter domsvc.CorrelationFitter,
	composer domsvc.DispatchComposer,
	optimizer domsvc.PurchaseOptimizer,
	opts ...Option,
) *ForecastService {
	d := applyOptions(opts)
	d.logger = d.logger.Named("forecast")
	return &ForecastService{
		deps:      d,
		store:     store,
		trend:     trend,
		fitter:    fitter,
		composer:  composer,
		optimizer: optimizer,
	}
}

func (s *ForecastService) today() time.Time {
	return util.Day(s.clock().UTC())
}

func (s *ForecastService) lookback(n int) int {
	if n <= 0 {
		return s.lookbackDays
	}
	return n
}

func (s *ForecastService) window(ctx context.Context, key models.SeriesKey, lookbackDays int) (models.TimeSeries, error) {
	today := s.today()
	ts, err := s.store.Series(ctx, key, util.AddDays(today, -lookbackDays), today)
	if err != nil {
		return models.TimeSeries{}, fmt.Errorf("load %s: %w", key, err)
	}
	return ts, nil
}

// maxSeriesSpan bounds one public series read.
const maxSeriesSpan = 3 * 365

// PublicSeries returns the stored public price of caliber within [from, to].
// A zero to means today and a zero from means the lookback window before to.
func (s *ForecastService) PublicSeries(ctx context.Context, caliber string, from, to time.Time) (models.TimeSeries, error) {
	if strings.TrimSpace(caliber) == "" {
		return models.TimeSeries{}, fmt.Errorf("%w: caliber is required", models.ErrInvalidArgument)
	}
	if to.IsZero() {
		to = s.today()
	}
	to = util.Day(to)
	if from.IsZero() {
		from = util.AddDays(to, -s.lookbackDays)
	}
	from = util.Day(from)
	switch {
	case from.After(to):
		return models.TimeSeries{}, fmt.Errorf("%w: from %s is after to %s",
			models.ErrInvalidArgument, util.FormatDate(from), util.FormatDate(to))
	case util.AddDays(from, maxSeriesSpan).Before(to):
		return models.TimeSeries{}, fmt.Errorf("%w: range longer than %d days", models.ErrInvalidArgument, maxSeriesSpan)
	}

	key := models.PublicKey(caliber)
	ts, err := s.store.Series(ctx, key, from, to)
	if err != nil {
		return models.TimeSeries{}, fmt.Errorf("load %s: %w", key, err)
	}
	if ts.Len() == 0 {
		return models.TimeSeries{}, fmt.Errorf("%w: no public prices for %s between %s and %s",
			models.ErrNoData, caliber, util.FormatDate(from), util.FormatDate(to))
	}
	return ts, nil
}

// ForecastPublic forecasts the public price of caliber daysAhead days past today.
func (s *ForecastService) ForecastPublic(ctx context.Context, caliber string, daysAhead, lookbackDays int) (models.ForecastResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("forecast_public", time.Since(start).Seconds()) }()

	if strings.TrimSpace(caliber) == "" {
		return models.ForecastResult{}, fmt.Errorf("%w: caliber is required", models.ErrInvalidArgument)
	}
	lookbackDays = s.lookback(lookbackDays)
	today := s.today()

	key := cache.GenerateKeyWithParams(forecastCachePrefix, "public", caliber, daysAhead, lookbackDays, util.FormatDate(today))
	var res models.ForecastResult
	if s.cacheGet(ctx, key, &res) {
		return res, nil
	}

	series, err := s.window(ctx, models.PublicKey(caliber), lookbackDays)
	if err != nil {
		return models.ForecastResult{}, err
	}
	res, err = s.trend.ForecastPublic(series, daysAhead, lookbackDays, today)
	if err != nil {
		s.metrics.RecordError(ErrorKind(err))
		return models.ForecastResult{}, err
	}

	s.metrics.RecordForecast("public", "ols_ema")
	s.metrics.RecordLastPrice(caliber, "public", res.LastPrice)
	s.cachePut(ctx, key, res)
	return res, nil
}

// FitCorrelation fits and stores the dispatch/public relation of
// (caliber, presentation). It returns the model even when a newer one was
// already stored, in which case applied is false.
func (s *ForecastService) FitCorrelation(ctx context.Context, caliber string, p models.Presentation, lookbackDays int) (model models.CorrelationModel, applied bool, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("fit_correlation", time.Since(start).Seconds()) }()

	if !domrepo.IsValidPresentation(p) {
		return model, false, fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, p)
	}
	lookbackDays = s.lookback(lookbackDays)

	public, err := s.window(ctx, models.PublicKey(analytics.PublicCaliberFor(caliber, p)), lookbackDays)
	if err != nil {
		return model, false, err
	}
	dispatch, err := s.window(ctx, models.DispatchKey(caliber, p), lookbackDays)
	if err != nil {
		return model, false, err
	}

	model, err = s.fitter.FitCorrelation(public, dispatch, lookbackDays, s.today())
	if err != nil {
		s.metrics.RecordError(ErrorKind(err))
		return model, false, err
	}
	model.ID = uuid.NewString()
	model.ComputedAt = s.clock().UTC()

	applied, err = s.store.UpsertCorrelation(ctx, model)
	if err != nil {
		return model, false, err
	}
	if applied {
		s.logger.Info("correlation updated",
			logger.String("caliber", caliber),
			logger.String("presentation", string(p)),
			logger.Float64("r_squared", model.RSquared),
			logger.Int("samples", model.SampleCount))
		s.invalidateForecasts(ctx)
		s.notify(ctx, models.Event{
			Type:    models.EventCorrelationUpdated,
			Key:     string(pkgkafka.SeriesKey(caliber, string(p))),
			Payload: model.View(),
		})
	}
	return model, applied, nil
}

// ForecastDispatch composes a dispatch forecast from the public forecast and
// the stored correlation. A missing correlation is fitted once; when there is
// not enough history to fit, the ratio fallback is used.
func (s *ForecastService) ForecastDispatch(ctx context.Context, caliber string, p models.Presentation, daysAhead, lookbackDays int) (models.DispatchForecast, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("forecast_dispatch", time.Since(start).Seconds()) }()

	if !domrepo.IsValidPresentation(p) {
		return models.DispatchForecast{}, fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, p)
	}
	lookbackDays = s.lookback(lookbackDays)

	key := cache.GenerateKeyWithParams(forecastCachePrefix, "dispatch", caliber, p, daysAhead, lookbackDays, util.FormatDate(s.today()))
	var out models.DispatchForecast
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	public, err := s.ForecastPublic(ctx, analytics.PublicCaliberFor(caliber, p), daysAhead, lookbackDays)
	if err != nil {
		return models.DispatchForecast{}, err
	}

	corr, err := s.store.CurrentCorrelation(ctx, caliber, p)
	if err != nil {
		return models.DispatchForecast{}, fmt.Errorf("load correlation: %w", err)
	}
	if corr == nil {
		m, _, err := s.FitCorrelation(ctx, caliber, p, lookbackDays)
		switch {
		case err == nil:
			corr = &m
		case errors.Is(err, models.ErrInsufficientData):
			s.logger.Debug("no correlation, using ratio fallback",
				logger.String("caliber", caliber),
				logger.String("presentation", string(p)),
				logger.Error(err))
		default:
			return models.DispatchForecast{}, err
		}
	}

	out, err = s.composer.ForecastDispatch(caliber, p, public, corr)
	if err != nil {
		s.metrics.RecordError(ErrorKind(err))
		return models.DispatchForecast{}, err
	}
	s.metrics.RecordForecast("dispatch", string(out.Method))
	s.cachePut(ctx, key, out)
	return out, nil
}

// QuotePurchase derives buy prices from the dispatch forecast. For a
// non-viable market the plan is returned together with an error wrapping
// models.ErrNotViable.
func (s *ForecastService) QuotePurchase(ctx context.Context, caliber string, p models.Presentation, daysAhead int) (models.PurchasePlan, error) {
	df, err := s.ForecastDispatch(ctx, caliber, p, daysAhead, 0)
	if err != nil {
		return models.PurchasePlan{}, err
	}
	q, err := s.optimizer.QuotePurchase(df.Estimate, daysAhead)
	plan := models.PurchasePlan{Dispatch: df, Quote: q}
	if err != nil {
		if errors.Is(err, models.ErrNotViable) {
			s.metrics.RecordError("not_viable")
			return plan, err
		}
		return models.PurchasePlan{}, err
	}
	return plan, nil
}

// ForecastBatch runs dispatch forecasts for every caliber × presentation
// with bounded parallelism. Per-key failures are reported in Errors.
func (s *ForecastService) ForecastBatch(ctx context.Context, calibers []string, presentations []models.Presentation, daysAhead int) (models.BatchForecast, error) {
	out := models.BatchForecast{
		DaysAhead: daysAhead,
		Results:   make(map[string]models.DispatchForecast),
		Errors:    make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)
	for _, cal := range calibers {
		for _, p := range presentations {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				key := cal + "_" + string(p)
				df, err := s.ForecastDispatch(gctx, cal, p, daysAhead, 0)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					out.Errors[key] = err.Error()
					return nil
				}
				out.Results[key] = df
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out, nil
}

// FeasibilityReport quotes a purchase at the report horizon and adds a
// readable recommendation with warnings.
func (s *ForecastService) FeasibilityReport(ctx context.Context, caliber string, p models.Presentation) (models.FeasibilityReport, error) {
	plan, err := s.QuotePurchase(ctx, caliber, p, s.reportDays)
	if err != nil && !errors.Is(err, models.ErrNotViable) {
		return models.FeasibilityReport{}, err
	}

	rep := models.FeasibilityReport{
		Caliber:      caliber,
		Presentation: p,
		GeneratedAt:  s.clock().UTC(),
		Plan:         plan,
	}
	q := plan.Quote
	if q.Viable {
		rep.Recommendation = fmt.Sprintf(
			"Buy %s %s at up to %.3f/lb (recommended %.3f/lb). Expected dispatch %.3f/lb in %d days, margin %.3f to %.3f.",
			caliber, p, q.MinimumBuyPrice, q.RecommendedBuyPrice, q.DispatchEstimate, q.HorizonDays,
			q.MarginMinimum, q.MarginRecommended)
	} else {
		rep.Recommendation = fmt.Sprintf("Market conditions are not viable for a profitable purchase within %d days.", q.HorizonDays)
	}

	df := plan.Dispatch
	if df.Method == models.MethodRatioFallback && df.Fallback != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("no usable correlation, dispatch estimated with fixed ratio %.2f", df.Fallback.Ratio))
	}
	if df.TrustLevel == models.TrustLow {
		rep.Warnings = append(rep.Warnings, "forecast trust is low")
	}
	if df.Public.Trend == models.TrendFalling {
		rep.Warnings = append(rep.Warnings, "public prices are trending down")
	}
	return rep, nil
}

// MarketSpread compares the latest public price of caliber with dispatchPrice.
func (s *ForecastService) MarketSpread(ctx context.Context, caliber string, p models.Presentation, dispatchPrice float64) (models.MarketSpread, error) {
	if !(dispatchPrice > 0) {
		return models.MarketSpread{}, fmt.Errorf("%w: dispatch price must be positive, got %v", models.ErrInvalidArgument, dispatchPrice)
	}
	if !domrepo.IsValidPresentation(p) {
		return models.MarketSpread{}, fmt.Errorf("%w: unknown presentation %q", models.ErrInvalidArgument, p)
	}
	pubCal := analytics.PublicCaliberFor(caliber, p)
	series, err := s.window(ctx, models.PublicKey(pubCal), s.lookbackDays)
	if err != nil {
		return models.MarketSpread{}, err
	}
	last, ok := series.Last()
	if !ok {
		return models.MarketSpread{}, fmt.Errorf("%w: no public price for %s in the last %d days", models.ErrNoData, pubCal, s.lookbackDays)
	}

	pub := decimal.NewFromFloat(last.Price)
	disp := decimal.NewFromFloat(dispatchPrice)
	spread := pub.Sub(disp)
	return models.MarketSpread{
		Caliber:        caliber,
		PublicCaliber:  pubCal,
		Presentation:   p,
		PublicPrice:    last.Price,
		PublicDate:     last.Date,
		DispatchPrice:  dispatchPrice,
		SpreadAbsolute: spread.Round(3).InexactFloat64(),
		SpreadPercent:  spread.Div(disp).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64(),
		Ratio:          pub.Div(disp).Round(3).InexactFloat64(),
	}, nil
}

// Correlations returns the current model and up to limit past fits.
func (s *ForecastService) Correlations(ctx context.Context, caliber string, p models.Presentation, limit int) (*models.CorrelationModel, []models.CorrelationModel, error) {
	cur, err := s.store.CurrentCorrelation(ctx, caliber, p)
	if err != nil {
		return nil, nil, err
	}
	hist, err := s.store.CorrelationHistory(ctx, caliber, p, limit)
	if err != nil {
		return nil, nil, err
	}
	return cur, hist, nil
}

// Status reports what the store holds, sorted by series.
func (s *ForecastService) Status(ctx context.Context) (models.StoreStatus, error) {
	st, err := s.store.Status(ctx)
	if err != nil {
		return st, err
	}
	sort.SliceStable(st.Series, func(i, j int) bool { return st.Series[i].Key.String() < st.Series[j].Key.String() })
	return st, nil
}

func (s *ForecastService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// ErrorKind maps an error to a low-cardinality metric label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, models.ErrNoData):
		return "no_data"
	case errors.Is(err, models.ErrNotViable):
		return "not_viable"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
