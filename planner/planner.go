// Package planner is the itinerary engine: it authorizes every trip-scoped call,
// keeps stop ordering consistent, aggregates budgets and copies public trips.
// All multi-row changes run inside one EntityStore transaction.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"globetrotter/config"
	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
)

// Anonymous is the user id of a caller without a session.
var Anonymous = uuid.Nil

type Planner struct {
	db         dbt.ItineraryDBWrapper
	guard      AccessGuard
	events     mq.TripEventQueue
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	cfg        config.PlannerConfig
	newSlug    func() (string, error)
	now        func() time.Time
	activities *lru.Cache[int64, dbt.Activity]
	admins     map[uuid.UUID]struct{}
}

type Option func(*Planner)

func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithEvents publishes a mq.TripEvent after every committed mutation.
func WithEvents(q mq.TripEventQueue) Option {
	return func(p *Planner) { p.events = q }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

func WithGuard(g AccessGuard) Option {
	return func(p *Planner) { p.guard = g }
}

// WithSlugFunc replaces the random public slug generator.
func WithSlugFunc(f func() (string, error)) Option {
	return func(p *Planner) { p.newSlug = f }
}

func WithConfig(cfg config.PlannerConfig) Option {
	return func(p *Planner) { p.cfg = cfg }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Planner) { p.tracer = t }
}

func New(db dbt.ItineraryDBWrapper, opts ...Option) (*Planner, error) {
	p := &Planner{
		db:     db,
		guard:  OwnerGuard{},
		logger: slog.Default(),
		tracer: otel.Tracer("globetrotter/planner"),
		cfg:    config.DefaultPlanner(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	defaults := config.DefaultPlanner()
	if p.cfg.StorageTimeout <= 0 {
		p.cfg.StorageTimeout = defaults.StorageTimeout
	}
	if p.cfg.RetryBase <= 0 {
		p.cfg.RetryBase = defaults.RetryBase
	}
	if p.cfg.SlugBytes <= 0 {
		p.cfg.SlugBytes = defaults.SlugBytes
	}
	if p.newSlug == nil {
		p.newSlug = RandomSlug(p.cfg.SlugBytes)
	}
	if p.cfg.CatalogCacheSize <= 0 {
		p.cfg.CatalogCacheSize = defaults.CatalogCacheSize
	}
	cache, err := lru.New[int64, dbt.Activity](p.cfg.CatalogCacheSize)
	if err != nil {
		return nil, err
	}
	p.activities = cache

	admins, err := p.cfg.Admins()
	if err != nil {
		return nil, err
	}
	p.admins = make(map[uuid.UUID]struct{}, len(admins))
	for _, id := range admins {
		p.admins[id] = struct{}{}
	}
	return p, nil
}

// run executes one planner operation under a span, metrics and the storage
// timeout. Idempotent operations are retried while they fail with a transient error.
func (p *Planner) run(ctx context.Context, op string, idempotent bool, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "planner."+op, trace.WithAttributes(attribute.Bool("idempotent", idempotent)))
	defer span.End()
	start := time.Now()

	attempt := func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, p.cfg.StorageTimeout)
		defer cancel()
		return asTransient(op, fn(actx))
	}

	var err error
	if idempotent && p.cfg.MaxRetries > 0 {
		backoff := retry.WithMaxRetries(uint64(p.cfg.MaxRetries), retry.NewExponential(p.cfg.RetryBase))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := attempt(ctx)
			if apperr.IsKind(err, apperr.KindTransient) {
				span.AddEvent("retry", trace.WithAttributes(attribute.String("error", err.Error())))
				return retry.RetryableError(err)
			}
			return err
		})
		err = asTransient(op, err)
	} else {
		err = attempt(ctx)
	}

	p.metrics.observe(op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.WarnContext(ctx, "planner operation failed", "op", op, "kind", apperr.KindOf(err).String(), "error", err)
	}
	return err
}

// asTransient maps an expired or canceled storage call onto a transient error.
func asTransient(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindTransient, op, err)
	}
	return err
}

// emit publishes after commit. The change is already durable, so a failed
// publish is logged and never returned.
func (p *Planner) emit(ctx context.Context, event mq.TripEvent) {
	if p.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = p.now()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StorageTimeout)
	defer cancel()
	if err := p.events.Publish(pctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish trip event", "trip_id", event.TripID, "type", event.Type, "error", err)
	}
}

func (p *Planner) committed(ctx context.Context, op string, tripID uuid.UUID, attrs ...any) {
	p.logger.InfoContext(ctx, "planner mutation committed", append([]any{"op", op, "trip_id", tripID}, attrs...)...)
}

func validateDates(op string, from, to *time.Time, fromName, toName string) error {
	if from != nil && to != nil && to.Before(*from) {
		return apperr.Validation(op, "%s must not be before %s", toName, fromName)
	}
	return nil
}

const maxTitleLength = 255

func validateTitle(op, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.Validation(op, "title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", apperr.Validation(op, "title is longer than %d characters", maxTitleLength)
	}
	return title, nil
}
