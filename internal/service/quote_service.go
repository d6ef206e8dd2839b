package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultHistoryLimit bounds GET /v1/quotes/history when no limit is given.
const DefaultHistoryLimit = 20

// QuoteDeps groups the collaborators of QuoteService. Only Simulator is
// required; a nil AI advisor, compliance checker, history store or carrier
// directory disables that feature.
type QuoteDeps struct {
	Legacy     port.LegacyRateFetcher
	AI         port.AIRateAdvisor
	Compliance port.ComplianceChecker
	Simulator  port.RateSimulator
	History    port.QuoteHistoryStore
	Carriers   *CarrierDirectory
}

// QuoteService orchestrates rate requests over the aggregation pipeline and
// exposes the stateless charge and financial operations.
type QuoteService struct {
	deps          QuoteDeps
	aggregator    *Aggregator
	normalizer    *Normalizer
	classifier    *ChargeClassifier
	defaultMargin decimal.Decimal
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewQuoteService creates the service with all dependencies injected.
func NewQuoteService(
	deps QuoteDeps,
	aggregator *Aggregator,
	normalizer *Normalizer,
	defaultMargin decimal.Decimal,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		deps:          deps,
		aggregator:    aggregator,
		normalizer:    normalizer,
		classifier:    NewChargeClassifier(),
		defaultMargin: defaultMargin,
		metrics:       metrics,
		logger:        logger,
	}
}

// Quote runs one aggregation for req and persists its summary.
func (s *QuoteService) Quote(ctx context.Context, req *domain.RateRequest) (*domain.RateQuoteResult, error) {
	ctx, span := tracer.Start(ctx, "QuoteService.Quote")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("quote", time.Since(start))
	}()

	if strings.TrimSpace(req.Origin) == "" {
		return nil, &domain.ErrValidation{Field: "origin", Message: "required"}
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, &domain.ErrValidation{Field: "destination", Message: "required"}
	}
	margin := s.defaultMargin
	if req.MarginPercent != nil {
		margin = *req.MarginPercent
	}
	if err := validateMargin(margin); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("route", req.Origin+"->"+req.Destination),
		attribute.String("mode", req.Mode),
	)

	res, err := s.aggregator.Aggregate(ctx, s.sources(req, margin))
	if err != nil {
		s.metrics.IncrRequest("error")
		return nil, fmt.Errorf("aggregate rates: %w", err)
	}

	s.record(res)
	s.matchCarriers(ctx, res.Options, req.PreferredTenant)

	if res.Compliance == nil {
		res.Compliance = &domain.ComplianceResult{Status: domain.ComplianceSkipped}
	}

	out := &domain.RateQuoteResult{
		RunID:       runID,
		Origin:      req.Origin,
		Destination: req.Destination,
		Mode:        req.Mode,
		Tenant:      req.PreferredTenant,
		Options:     res.Options,
		Exhausted:   res.Exhausted,
		Warning:     res.Warning,
		Diagnostic:  res.Diagnostic,
		Sources:     res.Sources,
		Compliance:  res.Compliance,
		GeneratedAt: time.Now().UTC(),
	}

	s.saveRun(ctx, out)

	s.logger.Info("quote run completed",
		zap.String("run_id", runID),
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.Int("options", len(out.Options)),
		zap.Int("rejected", res.Rejected),
		zap.Bool("exhausted", res.Exhausted),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}

// sources builds the aggregation input: one legacy call per combination, the
// optional AI advisor and compliance screening, and the local simulator.
func (s *QuoteService) sources(req *domain.RateRequest, margin decimal.Decimal) domain.RateSources {
	combos := req.Combinations()
	route := func(c domain.Combination) domain.LegacyRateRequest {
		return domain.LegacyRateRequest{
			Origin:        req.Origin,
			Destination:   req.Destination,
			Mode:          req.Mode,
			ContainerType: c.ContainerType,
			CargoType:     c.CargoType,
			Quantity:      c.Quantity,
			WeightKg:      req.WeightKg,
			VolumeCbm:     req.VolumeCbm,
		}
	}

	src := domain.RateSources{MarginPercent: margin}

	if s.deps.Legacy != nil {
		for _, c := range combos {
			lr := route(c)
			src.Legacy = append(src.Legacy, domain.LegacySource{
				Combination: c,
				Fetch: func(ctx context.Context) ([]map[string]any, error) {
					return s.deps.Legacy.FetchRates(ctx, &lr)
				},
			})
		}
	}

	if req.IncludeAI && s.deps.AI != nil {
		aiReq := &domain.AIRateRequest{
			Origin:      req.Origin,
			Destination: req.Destination,
			Mode:        req.Mode,
			Commodity:   req.Commodity,
			WeightKg:    req.WeightKg,
			VolumeCbm:   req.VolumeCbm,
			Containers:  combos,
		}
		src.AI = func(ctx context.Context) ([]map[string]any, error) {
			return s.deps.AI.SuggestRates(ctx, aiReq)
		}
	}

	if !req.SkipCompliance && s.deps.Compliance != nil {
		cr := &domain.ComplianceRequest{Origin: req.Origin, Destination: req.Destination, Commodity: req.Commodity}
		src.Compliance = func(ctx context.Context) (*domain.ComplianceResult, error) {
			return s.deps.Compliance.Check(ctx, cr)
		}
	}

	if s.deps.Simulator != nil {
		src.Simulate = func(c domain.Combination) []map[string]any {
			return s.deps.Simulator.Simulate(route(c))
		}
	}
	return src
}

// matchCarriers links options to carrier directory records, preferring the
// tenant's own records. Directory failures leave options unmatched.
func (s *QuoteService) matchCarriers(ctx context.Context, opts []domain.RateOption, tenant string) {
	if s.deps.Carriers == nil || len(opts) == 0 {
		return
	}
	carriers, err := s.deps.Carriers.List(ctx, tenant)
	if err != nil {
		s.logger.Warn("carrier directory unavailable, options left unmatched", zap.Error(err))
		return
	}
	byName := make(map[string]domain.Carrier, len(carriers))
	for _, c := range carriers {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}
	for i := range opts {
		if opts[i].Manual {
			continue
		}
		if c, ok := byName[strings.ToLower(strings.TrimSpace(opts[i].Carrier))]; ok {
			opts[i].CarrierID = c.ID
			opts[i].CarrierSCAC = c.SCAC
		}
	}
}

func (s *QuoteService) record(res *domain.AggregationResult) {
	degraded := false
	for _, r := range res.Sources {
		if r.Error != "" {
			degraded = true
			s.metrics.IncrExternalError(string(r.Source))
		}
		if r.FellBack && !res.Exhausted {
			s.metrics.IncrFallback(string(domain.SourceLegacy))
		}
	}
	s.metrics.AddRejected("aggregate", res.Rejected)
	s.metrics.ObserveOptions(len(res.Options))

	switch {
	case res.Exhausted:
		s.metrics.IncrExhaustion()
		s.metrics.IncrRequest("exhausted")
	case degraded:
		s.metrics.IncrRequest("degraded")
	default:
		s.metrics.IncrRequest("success")
	}
}

// saveRun persists the run summary. Failures are logged and never fail the quote.
func (s *QuoteService) saveRun(ctx context.Context, out *domain.RateQuoteResult) {
	if s.deps.History == nil {
		return
	}
	run := &domain.QuoteRun{
		RunID:       out.RunID,
		Origin:      out.Origin,
		Destination: out.Destination,
		Mode:        out.Mode,
		TenantID:    out.Tenant,
		OptionCount: len(out.Options),
		Exhausted:   out.Exhausted,
		CreatedAt:   out.GeneratedAt,
	}
	if best, ok := cheapest(out.Options); ok {
		run.BestPrice = best.Price
		run.Currency = best.Currency
	}
	if err := s.deps.History.SaveQuoteRun(ctx, run); err != nil {
		s.metrics.IncrExternalError("quote_history")
		s.logger.Warn("failed to persist quote run",
			zap.String("run_id", out.RunID),
			zap.Error(err),
		)
	}
}

func cheapest(opts []domain.RateOption) (domain.RateOption, bool) {
	if len(opts) == 0 {
		return domain.RateOption{}, false
	}
	best := opts[0]
	for _, o := range opts[1:] {
		if o.Price.LessThan(best.Price) {
			best = o
		}
	}
	return best, true
}

// ListHistory returns the most recent runs.
func (s *QuoteService) ListHistory(ctx context.Context, limit int) ([]domain.QuoteRun, error) {
	ctx, span := tracer.Start(ctx, "QuoteService.ListHistory")
	defer span.End()

	if s.deps.History == nil {
		return nil, &domain.ErrServiceUnavailable{Service: "quote history"}
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	runs, err := s.deps.History.ListQuoteRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list quote runs: %w", err)
	}
	return runs, nil
}

// ListCarriers returns the deduplicated carrier directory.
func (s *QuoteService) ListCarriers(ctx context.Context, preferredTenant string) ([]domain.Carrier, error) {
	if s.deps.Carriers == nil {
		return nil, &domain.ErrServiceUnavailable{Service: "carrier directory"}
	}
	return s.deps.Carriers.List(ctx, preferredTenant)
}

// ClassifyCharges attributes global and leg-attached charges to legs and
// buckets the result.
func (s *QuoteService) ClassifyCharges(req *domain.ClassifyRequest) *domain.ClassifyResponse {
	charges := s.classifier.Classify(FlattenLegCharges(req.Legs, req.Charges), req.Legs)
	for _, c := range charges {
		if c.Mismatched {
			anomaly := &domain.ErrClassificationAnomaly{ChargeID: c.ID, LegID: c.LegID}
			s.logger.Warn("charge classification anomaly", zap.Error(anomaly))
		}
	}
	return &domain.ClassifyResponse{
		Charges:   charges,
		Breakdown: SummarizeCharges(charges),
	}
}

// CalculateFinancials validates the request and derives buy, sell, margin and markup.
func (s *QuoteService) CalculateFinancials(req *domain.FinancialsRequest) (*domain.Financials, error) {
	if req.Price.IsNegative() {
		return nil, &domain.ErrValidation{Field: "price", Message: "must not be negative"}
	}
	if err := validateMargin(req.MarginPercent); err != nil {
		return nil, err
	}
	f := CalculateFinancials(req.Price, req.MarginPercent, req.IsBuyPriceKnown)
	return &f, nil
}

// Normalize maps one raw option and prices it with marginPercent, or the
// default margin when nil.
func (s *QuoteService) Normalize(raw domain.RawOption, marginPercent *decimal.Decimal) (*domain.RateOption, error) {
	opt := s.normalizer.Normalize(raw)
	if opt == nil {
		s.metrics.AddRejected("normalize", 1)
		return nil, &domain.ErrNormalizationReject{Source: raw.Kind}
	}
	margin := s.defaultMargin
	if marginPercent != nil {
		margin = *marginPercent
	}
	if err := validateMargin(margin); err != nil {
		return nil, err
	}
	ApplyFinancials(opt, margin)
	return opt, nil
}

func validateMargin(m decimal.Decimal) error {
	if m.IsNegative() || m.GreaterThan(hundred) {
		return &domain.ErrValidation{Field: "margin_percent", Message: "must be between 0 and 100"}
	}
	return nil
}
