package pipeline

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/transvox/internal/observe"
	"github.com/MrWong99/transvox/pkg/analyzer"
	analyzermock "github.com/MrWong99/transvox/pkg/analyzer/mock"
	"github.com/MrWong99/transvox/pkg/staging"
	stagingmock "github.com/MrWong99/transvox/pkg/staging/mock"
	"github.com/MrWong99/transvox/pkg/translate"
	translatemock "github.com/MrWong99/transvox/pkg/translate/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type fixture struct {
	store      *stagingmock.Store
	decoder    *analyzermock.Decoder
	translator *translatemock.Provider
	reader     *sdkmetric.ManualReader
	orch       *Orchestrator
}

func newFixture(t *testing.T, det *analyzer.Detection, opts ...Option) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		store:   &stagingmock.Store{},
		decoder: &analyzermock.Decoder{Detection: det},
		translator: &translatemock.Provider{
			Result: &translate.Result{TranscribedText: "Hello", TranslatedText: "Xin chào"},
		},
		reader: reader,
	}
	opts = append([]Option{WithMetrics(m)}, opts...)
	f.orch = New(f.store, analyzer.New(f.decoder, analyzer.WithWorkers(1)), f.translator, opts...)
	return f
}

// counter returns the value of the int64 sum named name at the data point
// matching every attribute in attrs.
func (f *fixture) counter(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				match := true
				for _, kv := range attrs {
					v, ok := dp.Attributes.Value(kv.Key)
					if !ok || v.Emit() != kv.Value.Emit() {
						match = false
						break
					}
				}
				if match {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func speech(d time.Duration) *analyzer.Detection {
	return &analyzer.Detection{Duration: d, DurationKnown: true}
}

func withSilence(total, silence time.Duration) *analyzer.Detection {
	return &analyzer.Detection{
		Duration:      total,
		DurationKnown: true,
		Silences:      []analyzer.Interval{{Start: 0, End: silence}},
	}
}

func submission() Submission {
	return Submission{
		Audio:      []byte("original-audio"),
		Filename:   "clip.webm",
		MIMEType:   "audio/webm",
		SourceLang: "en",
		TargetLang: "vi",
	}
}

type stageLog struct {
	mu     sync.Mutex
	stages []Stage
}

func (l *stageLog) StageEntered(s Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, s)
}

func (l *stageLog) get() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.stages)
}

// ── Happy path ───────────────────────────────────────────────────────────────

func TestProcess_ToneIsTranslated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(3*time.Second))
	log := &stageLog{}

	out, err := f.orch.Process(context.Background(), submission(), log)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Skipped {
		t.Fatal("a 3 s tone must not be skipped")
	}
	if out.TranscribedText != "Hello" || out.TranslatedText != "Xin chào" {
		t.Errorf("texts = %q / %q", out.TranscribedText, out.TranslatedText)
	}
	if out.Analysis.SpeechPercentage != 100 {
		t.Errorf("SpeechPercentage = %v, want 100", out.Analysis.SpeechPercentage)
	}

	if n := f.translator.CallCount(); n != 1 {
		t.Fatalf("translator calls = %d, want 1", n)
	}
	req := f.translator.Calls[0]
	if !bytes.Equal(req.Audio, []byte("original-audio")) {
		t.Errorf("translator audio = %q, want the original upload", req.Audio)
	}
	if req.SourceLang != "en" || req.TargetLang != "vi" || req.Filename != "clip.webm" {
		t.Errorf("unexpected request metadata: %+v", req)
	}
	if n := f.store.DeleteCount(); n != 1 {
		t.Errorf("deletes = %d, want 1", n)
	}

	want := []Stage{
		StageValidating, StageUploading, StageResolving, StageDownloading,
		StageAnalyzing, StageTranslating, StageCleaningUp, StageDone,
	}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if got := f.counter(t, "transvox.pipeline.runs", attribute.String("outcome", "translated")); got != 1 {
		t.Errorf("translated runs = %d, want 1", got)
	}
}

func TestProcess_ForwardProcessed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(3*time.Second), WithForwardProcessed(true))
	f.store.ProcessedData = []byte("normalised-wav")

	if _, err := f.orch.Process(context.Background(), submission(), nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.translator.Calls[0].Audio; !bytes.Equal(got, []byte("normalised-wav")) {
		t.Errorf("translator audio = %q, want the processed variant", got)
	}
	if got := f.decoder.Calls[0].Audio; !bytes.Equal(got, []byte("normalised-wav")) {
		t.Errorf("analyzer audio = %q, want the processed variant", got)
	}
}

func TestProcess_TrimsLanguages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	sub := submission()
	sub.SourceLang, sub.TargetLang = "  en ", "\tvi\n"

	if _, err := f.orch.Process(context.Background(), sub, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	req := f.translator.Calls[0]
	if req.SourceLang != "en" || req.TargetLang != "vi" {
		t.Errorf("languages = %q/%q, want trimmed", req.SourceLang, req.TargetLang)
	}
}

// ── Speech decision ──────────────────────────────────────────────────────────

func TestProcess_ShortCircuitsSilence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withSilence(10*time.Second, 9500*time.Millisecond))
	log := &stageLog{}

	out, err := f.orch.Process(context.Background(), submission(), log)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Skipped {
		t.Fatal("expected Skipped")
	}
	if out.TranscribedText != "" || out.TranslatedText != "" {
		t.Errorf("texts must be empty, got %q / %q", out.TranscribedText, out.TranslatedText)
	}
	if out.Message != MsgNoSpeech {
		t.Errorf("Message = %q, want %q", out.Message, MsgNoSpeech)
	}
	if n := f.translator.CallCount(); n != 0 {
		t.Errorf("translator calls = %d, want 0", n)
	}
	if n := f.store.DeleteCount(); n != 1 {
		t.Errorf("deletes = %d, want 1", n)
	}

	want := []Stage{
		StageValidating, StageUploading, StageResolving, StageDownloading,
		StageAnalyzing, StageSkipped, StageCleaningUp, StageDone,
	}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
	if got := f.counter(t, "transvox.pipeline.runs", attribute.String("outcome", "skipped")); got != 1 {
		t.Errorf("skipped runs = %d, want 1", got)
	}
}

func TestProcess_DecisionBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		det       *analyzer.Detection
		translate bool
	}{
		{"exactly 15 percent", withSilence(100*time.Second, 85*time.Second), true},
		{"14 percent", withSilence(100*time.Second, 86*time.Second), false},
		{"unknown duration without silence", &analyzer.Detection{}, true},
		{"unknown duration with silence", &analyzer.Detection{
			Silences: []analyzer.Interval{{Start: time.Second, End: 2 * time.Second}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.det)
			out, err := f.orch.Process(context.Background(), submission(), nil)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if out.Skipped == tt.translate {
				t.Errorf("Skipped = %v, want %v", out.Skipped, !tt.translate)
			}
			want := 0
			if tt.translate {
				want = 1
			}
			if n := f.translator.CallCount(); n != want {
				t.Errorf("translator calls = %d, want %d", n, want)
			}
		})
	}
}

func TestProcess_AnalysisFailureIsSilence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.decoder.DetectErr = errors.New("invalid data found when processing input")

	out, err := f.orch.Process(context.Background(), submission(), nil)
	if err != nil {
		t.Fatalf("analysis failure must not fail the run: %v", err)
	}
	if !out.Skipped || out.Analysis.Reason != analyzer.ReasonAnalysisFailed {
		t.Errorf("Skipped = %v, Reason = %q", out.Skipped, out.Analysis.Reason)
	}
	if n := f.translator.CallCount(); n != 0 {
		t.Errorf("translator calls = %d, want 0", n)
	}
	if n := f.store.DeleteCount(); n != 1 {
		t.Errorf("deletes = %d, want 1", n)
	}
	if got := f.counter(t, "transvox.analysis.decisions",
		attribute.String("reason", string(analyzer.ReasonAnalysisFailed))); got != 1 {
		t.Errorf("analysis_failed decisions = %d, want 1", got)
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestProcess_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Submission)
		message string
	}{
		{"no audio", func(s *Submission) { s.Audio = nil }, MsgNoFile},
		{"missing source language", func(s *Submission) { s.SourceLang = "" }, MsgLanguagesNeeded},
		{"blank target language", func(s *Submission) { s.TargetLang = "   " }, MsgLanguagesNeeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, speech(time.Second))
			sub := submission()
			tt.mutate(&sub)

			_, err := f.orch.Process(context.Background(), sub, nil)
			if KindOf(err) != KindValidation {
				t.Fatalf("KindOf = %v, want validation (err: %v)", KindOf(err), err)
			}
			if got := PublicMessage(err); got != tt.message {
				t.Errorf("PublicMessage = %q, want %q", got, tt.message)
			}
			if f.store.UploadCount() != 0 || f.decoder.CallCount() != 0 || f.translator.CallCount() != 0 {
				t.Error("validation failure must not reach any collaborator")
			}
			if n := f.store.DeleteCount(); n != 0 {
				t.Errorf("deletes = %d, want 0", n)
			}
		})
	}
}

// ── Failure paths and cleanup ────────────────────────────────────────────────

func TestProcess_FailureKinds(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name    string
		setup   func(*fixture)
		kind    Kind
		stage   Stage
		deletes int
	}{
		{
			name:    "upload fails",
			setup:   func(f *fixture) { f.store.UploadErr = boom },
			kind:    KindStagingUpload,
			stage:   StageUploading,
			deletes: 0,
		},
		{
			name:    "processed url fails",
			setup:   func(f *fixture) { f.store.ProcessedURLErr = boom },
			kind:    KindStagingDownload,
			stage:   StageResolving,
			deletes: 1,
		},
		{
			name:    "download fails",
			setup:   func(f *fixture) { f.store.DownloadErr = boom },
			kind:    KindStagingDownload,
			stage:   StageDownloading,
			deletes: 1,
		},
		{
			name: "translation fails",
			setup: func(f *fixture) {
				f.translator.Err = &translate.ServiceError{StatusCode: 502, Message: "model overloaded"}
			},
			kind:    KindTranslation,
			stage:   StageTranslating,
			deletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, speech(time.Second))
			tt.setup(f)

			out, err := f.orch.Process(context.Background(), submission(), nil)
			if err == nil {
				t.Fatalf("expected error, got outcome %+v", out)
			}
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *Error", err)
			}
			if pe.Kind != tt.kind || pe.Stage != tt.stage {
				t.Errorf("Kind/Stage = %v/%v, want %v/%v", pe.Kind, pe.Stage, tt.kind, tt.stage)
			}
			if pe.Stack == "" {
				t.Error("expected a captured stack")
			}
			if n := f.store.DeleteCount(); n != tt.deletes {
				t.Errorf("deletes = %d, want %d", n, tt.deletes)
			}
			if got := f.counter(t, "transvox.pipeline.runs",
				attribute.String("outcome", "error"),
				attribute.String("kind", tt.kind.String())); got != 1 {
				t.Errorf("error runs for %v = %d, want 1", tt.kind, got)
			}
		})
	}
}

func TestProcess_TranslationMessageSurfaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	f.translator.Err = &translate.ServiceError{StatusCode: 500, Message: "Unsupported language pair"}

	_, err := f.orch.Process(context.Background(), submission(), nil)
	if got := PublicMessage(err); got != "Unsupported language pair" {
		t.Errorf("PublicMessage = %q, want the upstream message", got)
	}
}

func TestProcess_CleanupFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	f.store.DeleteErr = stagingmock.ErrNotFound

	out, err := f.orch.Process(context.Background(), submission(), nil)
	if err != nil {
		t.Fatalf("delete failure must not surface: %v", err)
	}
	if out.TranslatedText != "Xin chào" {
		t.Errorf("TranslatedText = %q", out.TranslatedText)
	}
	if got := f.counter(t, "transvox.staging.cleanup_failures"); got != 1 {
		t.Errorf("cleanup failures = %d, want 1", got)
	}
}

func TestProcess_DoubleDeleteIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	store := &preDeletingStore{Store: f.store}
	f.orch.store = store

	if _, err := f.orch.Process(context.Background(), submission(), nil); err != nil {
		t.Fatalf("second delete must not surface: %v", err)
	}
	if n := f.store.DeleteCount(); n != 2 {
		t.Errorf("deletes = %d, want 2 (one external, one deferred)", n)
	}
	if got := f.counter(t, "transvox.staging.cleanup_failures"); got != 1 {
		t.Errorf("cleanup failures = %d, want 1", got)
	}
}

// preDeletingStore deletes each object right after upload, as an expiring
// backend would, so the pipeline's own delete hits a missing object.
type preDeletingStore struct {
	*stagingmock.Store
}

func (s *preDeletingStore) Upload(ctx context.Context, data []byte, opts staging.UploadOptions) (*staging.Resource, error) {
	res, err := s.Store.Upload(ctx, data, opts)
	if err == nil {
		_ = s.Store.Delete(ctx, res)
	}
	return res, err
}

func TestProcess_CleanupSurvivesCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	f.translator.Block = make(chan struct{})
	store := &ctxRecordingStore{Store: f.store}
	f.orch.store = store

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := f.orch.Process(ctx, submission(), ObserverFunc(func(s Stage) {
			if s == StageTranslating {
				cancel()
			}
		}))
		errc <- err
	}()

	select {
	case err := <-errc:
		if KindOf(err) != KindTranslation {
			t.Errorf("KindOf = %v, want translation (err: %v)", KindOf(err), err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after cancellation")
	}

	if n := f.store.DeleteCount(); n != 1 {
		t.Fatalf("deletes = %d, want 1", n)
	}
	if store.deleteCtxErr != nil {
		t.Errorf("delete ran on a cancelled context: %v", store.deleteCtxErr)
	}
}

// ctxRecordingStore remembers the context state seen by Delete.
type ctxRecordingStore struct {
	*stagingmock.Store
	deleteCtxErr error
}

func (s *ctxRecordingStore) Delete(ctx context.Context, res *staging.Resource) error {
	s.deleteCtxErr = ctx.Err()
	if _, ok := ctx.Deadline(); !ok {
		s.deleteCtxErr = errors.New("delete context has no deadline")
	}
	return s.Store.Delete(ctx, res)
}

// ── Observer ─────────────────────────────────────────────────────────────────

func TestProcess_ObserverOnUploadFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, speech(time.Second))
	f.store.UploadErr = errors.New("quota exceeded")
	log := &stageLog{}

	_, _ = f.orch.Process(context.Background(), submission(), log)

	want := []Stage{StageValidating, StageUploading, StageDone}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("stages = %v, want %v", got, want)
	}
}

func TestStage_String(t *testing.T) {
	t.Parallel()

	tests := map[Stage]string{
		StageValidating: "validating",
		StageCleaningUp: "cleaning_up",
		StageDone:       "done",
		Stage(99):       "unknown",
		Stage(-1):       "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
