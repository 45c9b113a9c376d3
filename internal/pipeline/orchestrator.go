// Package pipeline runs one upload through staging, speech analysis and
// translation.
//
// A run is strictly sequential:
//
//	validating → uploading → resolving → downloading → analyzing →
//	{translating | skipped} → cleaning_up → done
//
// Once the upload succeeds, exactly one deferred delete removes the staged
// object on every exit path. The delete runs on a context detached from the
// caller so a disconnected client does not leak staged objects, and its
// failures are logged and counted but never returned.
//
// A clip without enough speech is a successful outcome with empty texts,
// not an error. Every other failure is an [*Error] carrying its [Kind].
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/transvox/internal/observe"
	"github.com/MrWong99/transvox/pkg/analyzer"
	"github.com/MrWong99/transvox/pkg/staging"
	"github.com/MrWong99/transvox/pkg/translate"
)

// DefaultCleanupTimeout bounds the detached delete of a staged object.
const DefaultCleanupTimeout = 10 * time.Second

// SpeechDetector decides whether a buffer contains speech.
// *analyzer.Analyzer satisfies it.
type SpeechDetector interface {
	Analyze(ctx context.Context, audio []byte) analyzer.Result
}

var _ SpeechDetector = (*analyzer.Analyzer)(nil)

// Orchestrator runs pipeline submissions. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	store      staging.Store
	detector   SpeechDetector
	translator translate.Provider

	metrics          *observe.Metrics
	cleanupTimeout   time.Duration
	forwardProcessed bool
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithCleanupTimeout bounds the deferred delete. Defaults to
// [DefaultCleanupTimeout].
func WithCleanupTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.cleanupTimeout = d
		}
	}
}

// WithForwardProcessed makes the orchestrator send the downloaded,
// normalised variant to the translator instead of the client's original
// bytes.
func WithForwardProcessed(v bool) Option {
	return func(o *Orchestrator) {
		o.forwardProcessed = v
	}
}

// New creates an Orchestrator.
func New(store staging.Store, detector SpeechDetector, translator translate.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		detector:       detector,
		translator:     translator,
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Process runs sub through the pipeline. obs may be nil.
//
// A nil error means success; a run whose analysis found no speech returns
// an Outcome with Skipped set. Any error is an [*Error].
func (o *Orchestrator) Process(ctx context.Context, sub Submission, obs Observer) (out *Outcome, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("pipeline.source_lang", sub.SourceLang),
			attribute.String("pipeline.target_lang", sub.TargetLang),
			attribute.Int64("pipeline.upload_size", sub.Size()),
		),
	)
	defer span.End()

	o.metrics.ActivePipelines.Add(ctx, 1)
	defer o.metrics.ActivePipelines.Add(ctx, -1)

	st := &stages{ctx: ctx, span: span, metrics: o.metrics, obs: obs}
	defer func() {
		st.enter(StageDone)
		o.finish(ctx, span, out, err)
	}()

	st.enter(StageValidating)
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	sub = sub.normalized()
	o.metrics.UploadSize.Record(ctx, sub.Size())

	st.enter(StageUploading)
	res, err := o.store.Upload(ctx, sub.Audio, staging.UploadOptions{
		Filename: sub.Filename,
		MIMEType: sub.MIMEType,
	})
	if err != nil {
		return nil, newError(KindStagingUpload, StageUploading, err)
	}
	defer o.cleanup(ctx, st, res)

	st.enter(StageResolving)
	url, err := o.store.ProcessedURL(res)
	if err != nil {
		return nil, newError(KindStagingDownload, StageResolving, err)
	}

	st.enter(StageDownloading)
	processed, err := o.store.Download(ctx, url)
	if err != nil {
		return nil, newError(KindStagingDownload, StageDownloading, err)
	}

	st.enter(StageAnalyzing)
	verdict := o.detector.Analyze(ctx, processed)
	o.metrics.RecordDecision(ctx, string(verdict.Reason), verdict.HasSpeech)
	span.SetAttributes(
		attribute.Bool("pipeline.has_speech", verdict.HasSpeech),
		attribute.Float64("pipeline.speech_percentage", verdict.SpeechPercentage),
		attribute.String("pipeline.decision", string(verdict.Reason)),
	)
	if verdict.Err != nil {
		aerr := &Error{Kind: KindAnalysis, Stage: StageAnalyzing, Err: verdict.Err}
		observe.Logger(ctx).Warn("analysis failed, treating clip as silence", "err", aerr)
	}

	if !verdict.HasSpeech {
		st.enter(StageSkipped)
		return &Outcome{Message: MsgNoSpeech, Skipped: true, Analysis: verdict}, nil
	}

	st.enter(StageTranslating)
	payload := sub.Audio
	if o.forwardProcessed {
		payload = processed
	}
	tr, err := o.translator.Translate(ctx, translate.Request{
		Audio:      payload,
		Filename:   sub.Filename,
		MIMEType:   sub.MIMEType,
		SourceLang: sub.SourceLang,
		TargetLang: sub.TargetLang,
	})
	if err != nil {
		return nil, newError(KindTranslation, StageTranslating, err)
	}
	out = &Outcome{Analysis: verdict}
	if tr != nil {
		out.Result = *tr
	}
	return out, nil
}

// cleanup deletes the staged object. It runs exactly once per staged run.
func (o *Orchestrator) cleanup(ctx context.Context, st *stages, res *staging.Resource) {
	st.enter(StageCleaningUp)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cleanupTimeout)
	defer cancel()

	if err := o.store.Delete(cctx, res); err != nil {
		cerr := &Error{Kind: KindCleanup, Stage: StageCleaningUp, Err: err}
		o.metrics.CleanupFailures.Add(ctx, 1)
		observe.Logger(ctx).Warn("staged object not deleted",
			"resource", res.ID,
			"err", cerr,
		)
	}
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, out *Outcome, err error) {
	switch {
	case err != nil:
		kind := KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		o.metrics.RecordRun(ctx, "error", kind.String())

		level := slog.LevelError
		if kind == KindValidation {
			level = slog.LevelDebug
		}
		observe.Logger(ctx).Log(ctx, level, "pipeline failed", "kind", kind.String(), "err", err)
	case out != nil && out.Skipped:
		o.metrics.RecordRun(ctx, "skipped", "")
	default:
		o.metrics.RecordRun(ctx, "translated", "")
	}
}

// stages tracks the current stage of one run, feeding the observer, span
// events and per-stage latency.
type stages struct {
	ctx     context.Context
	span    trace.Span
	metrics *observe.Metrics
	obs     Observer

	current Stage
	started time.Time
	active  bool
}

func (s *stages) enter(next Stage) {
	now := time.Now()
	if s.active {
		s.metrics.RecordStage(s.ctx, s.current.String(), now.Sub(s.started).Seconds())
	}
	s.current, s.started, s.active = next, now, next != StageDone
	s.span.AddEvent(next.String())
	if s.obs != nil {
		s.obs.StageEntered(next)
	}
}
