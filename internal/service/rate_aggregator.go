package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/quotes")

// Ranking limits.
const (
	MaxOptionsPerCombination = 2
	MaxAIOptionsPerCarrier   = 5
	MaxFallbackOptions       = 5
)

// sourceShare is the fraction of the caller's remaining time given to the
// upstream fan-out. The rest is kept for simulation and ranking.
const sourceShare = 0.8

// Aggregator merges rate options from every source into one ranked list.
// It keeps no state between runs.
type Aggregator struct {
	normalizer     *Normalizer
	maxConcurrency int
	sourceTimeout  time.Duration
	logger         *zap.Logger
}

// NewAggregator creates an aggregator. maxConcurrency <= 0 means unbounded fan-out.
func NewAggregator(normalizer *Normalizer, maxConcurrency int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		normalizer:     normalizer,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

type branchResult struct {
	raw []map[string]any
	err error
}

// WithSourceTimeout caps how long upstream sources may run in one aggregation.
// Sources still running at the cap are treated as unavailable.
func (a *Aggregator) WithSourceTimeout(d time.Duration) *Aggregator {
	a.sourceTimeout = d
	return a
}

// sourceContext derives the fan-out context. Its deadline is the configured
// source timeout or sourceShare of the caller's remaining time, whichever is
// earlier.
func (a *Aggregator) sourceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := a.sourceTimeout
	if deadline, ok := ctx.Deadline(); ok {
		budget := time.Duration(float64(time.Until(deadline)) * sourceShare)
		if timeout <= 0 || budget < timeout {
			timeout = budget
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Aggregate runs one aggregation: fan-out to every source, per-combination
// fallback to simulation, normalization and financials, ranking, merge, and
// a final simulation when nothing survived.
//
// The only errors are a call without any source and a cancelled context.
// Source failures, including sources that outlive their deadline, are
// reported in the result.
func (a *Aggregator) Aggregate(ctx context.Context, src domain.RateSources) (*domain.AggregationResult, error) {
	if len(src.Legacy) == 0 && src.AI == nil && src.Simulate == nil {
		return nil, domain.ErrNoRateSources
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Aggregator.Aggregate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sources.legacy", len(src.Legacy)),
		attribute.Bool("sources.ai", src.AI != nil),
	)

	fanCtx, cancel := a.sourceContext(ctx)
	defer cancel()

	// --- Step 1: Compliance runs alongside, never awaited ---
	var compliance chan *domain.ComplianceResult
	if src.Compliance != nil {
		compliance = make(chan *domain.ComplianceResult, 1)
		go func() {
			compliance <- runCompliance(fanCtx, src.Compliance)
		}()
	}

	// --- Step 2: Fan-out / fan-in ---
	legacy := make([]branchResult, len(src.Legacy))
	var ai branchResult

	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	for i, ls := range src.Legacy {
		i, ls := i, ls
		g.Go(func() error {
			legacy[i].raw, legacy[i].err = safeFetch(fanCtx, ls.Fetch)
			return nil
		})
	}
	if src.AI != nil {
		g.Go(func() error {
			ai.raw, ai.err = safeFetch(fanCtx, src.AI)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, err
	}

	res := &domain.AggregationResult{Options: []domain.RateOption{}}
	var errs error

	// --- Steps 3-4: legacy (or simulated) per combination ---
	// Sources sharing a combination key are ranked and capped together.
	order := make([]string, 0, len(src.Legacy))
	byCombination := make(map[string][]domain.RateOption, len(src.Legacy))
	for i, ls := range src.Legacy {
		key := ls.Combination.Key()
		report := domain.SourceReport{Source: domain.SourceLegacy, Combination: key}

		opts, rejected := a.normalizeAll(domain.SourceLegacy, legacy[i].raw, src.MarginPercent, key)
		res.Rejected += rejected
		if legacy[i].err != nil || len(opts) == 0 {
			srcErr := &domain.ErrSourceUnavailable{Source: domain.SourceLegacy, Combination: key, Err: legacy[i].err}
			errs = multierr.Append(errs, srcErr)
			a.logger.Warn("legacy rate source unavailable, simulating combination",
				zap.String("combination", key),
				zap.Error(srcErr),
			)
			report.Error = srcErr.Error()
			report.FellBack = true
			report.Source = domain.SourceSimulated

			opts, rejected = a.normalizeAll(domain.SourceSimulated, simulate(src.Simulate, ls.Combination), src.MarginPercent, key)
			res.Rejected += rejected
		}

		opts = topN(RankByPriceAndTransit(opts), MaxOptionsPerCombination)
		report.Options = len(opts)
		res.Sources = append(res.Sources, report)
		if _, seen := byCombination[key]; !seen {
			order = append(order, key)
		}
		byCombination[key] = append(byCombination[key], opts...)
	}
	for _, key := range order {
		res.Options = append(res.Options, topN(RankByPriceAndTransit(byCombination[key]), MaxOptionsPerCombination)...)
	}

	// --- Step 5: AI options ---
	if src.AI != nil {
		report := domain.SourceReport{Source: domain.SourceAI}
		opts, rejected := a.normalizeAll(domain.SourceAI, ai.raw, src.MarginPercent, "")
		res.Rejected += rejected
		if ai.err != nil || len(opts) == 0 {
			srcErr := &domain.ErrSourceUnavailable{Source: domain.SourceAI, Err: ai.err}
			errs = multierr.Append(errs, srcErr)
			a.logger.Warn("AI rate source unavailable", zap.Error(srcErr))
			report.Error = srcErr.Error()
		}
		opts = RankAIOptions(opts)
		report.Options = len(opts)
		res.Sources = append(res.Sources, report)
		res.Options = append(res.Options, opts...)
	}

	// --- Step 7: Global fallback ---
	if len(res.Options) == 0 {
		primary := domain.Combination{}
		if len(src.Legacy) > 0 {
			primary = src.Legacy[0].Combination
		}
		opts, rejected := a.normalizeAll(domain.SourceSimulated, simulate(src.Simulate, primary), src.MarginPercent, primary.Key())
		res.Rejected += rejected
		opts = topN(RankByPrice(opts), MaxFallbackOptions)

		diagnostic := "no rate source returned options"
		if errs != nil {
			diagnostic = diagnosticOf(errs)
		}
		res.Options = opts
		res.Exhausted = true
		res.Diagnostic = diagnostic
		res.Warning = (&domain.ErrTotalExhaustion{Diagnostic: diagnostic}).Error()
		res.Sources = append(res.Sources, domain.SourceReport{
			Source:      domain.SourceSimulated,
			Combination: primary.Key(),
			Options:     len(opts),
			FellBack:    true,
		})

		a.logger.Error("all rate sources exhausted, returning simulated options",
			zap.String("combination", primary.Key()),
			zap.Int("options", len(opts)),
			zap.String("diagnostic", diagnostic),
		)
	}

	if compliance != nil {
		select {
		case c := <-compliance:
			res.Compliance = c
		default:
			res.Compliance = &domain.ComplianceResult{Status: domain.CompliancePending}
		}
	}

	span.SetAttributes(
		attribute.Int("options", len(res.Options)),
		attribute.Bool("exhausted", res.Exhausted),
	)
	return res, nil
}

// normalizeAll normalizes and prices raw options, returning survivors and the
// number of rejected payloads.
func (a *Aggregator) normalizeAll(kind domain.SourceKind, raw []map[string]any, marginPercent decimal.Decimal, combination string) ([]domain.RateOption, int) {
	out := make([]domain.RateOption, 0, len(raw))
	rejected := 0
	for _, p := range raw {
		opt := a.normalizer.Normalize(domain.RawOption{Kind: kind, Payload: p})
		if opt == nil {
			rejected++
			continue
		}
		opt.Combination = combination
		ApplyFinancials(opt, marginPercent)
		out = append(out, *opt)
	}
	return out, rejected
}

// RankByPriceAndTransit sorts by price, then transit days; unparsable transit sorts last.
func RankByPriceAndTransit(opts []domain.RateOption) []domain.RateOption {
	sort.SliceStable(opts, func(i, j int) bool {
		if c := opts[i].Price.Cmp(opts[j].Price); c != 0 {
			return c < 0
		}
		di, dj := opts[i].TransitDays, opts[j].TransitDays
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})
	return opts
}

// RankByPrice sorts by price ascending.
func RankByPrice(opts []domain.RateOption) []domain.RateOption {
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Price.LessThan(opts[j].Price) })
	return opts
}

// RankAIOptions groups options by carrier in first-seen order, puts best_value
// options first within each group, then sorts by price, keeping
// MaxAIOptionsPerCarrier per carrier.
func RankAIOptions(opts []domain.RateOption) []domain.RateOption {
	var order []string
	groups := make(map[string][]domain.RateOption)
	for _, o := range opts {
		key := strings.ToLower(strings.TrimSpace(o.Carrier))
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], o)
	}

	out := make([]domain.RateOption, 0, len(opts))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g, func(i, j int) bool {
			bi, bj := g[i].Tier == domain.TierBestValue, g[j].Tier == domain.TierBestValue
			if bi != bj {
				return bi
			}
			return g[i].Price.LessThan(g[j].Price)
		})
		out = append(out, topN(g, MaxAIOptionsPerCarrier)...)
	}
	return out
}

func topN(opts []domain.RateOption, n int) []domain.RateOption {
	if len(opts) > n {
		return opts[:n]
	}
	return opts
}

func simulate(fn domain.SimulateFunc, c domain.Combination) (out []map[string]any) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	return fn(c)
}

func safeFetch(ctx context.Context, fn domain.FetchFunc) (raw []map[string]any, err error) {
	if fn == nil {
		return nil, fmt.Errorf("no fetch function")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate source panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func runCompliance(ctx context.Context, fn domain.ComplianceFunc) (res *domain.ComplianceResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &domain.ComplianceResult{Status: domain.ComplianceError, Reasons: []string{fmt.Sprint(r)}}
		}
	}()
	c, err := fn(ctx)
	if err != nil {
		return &domain.ComplianceResult{Status: domain.ComplianceError, Reasons: []string{err.Error()}}
	}
	if c == nil {
		return &domain.ComplianceResult{Status: domain.ComplianceClear}
	}
	return c
}

func diagnosticOf(err error) string {
	errs := multierr.Errors(err)
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
