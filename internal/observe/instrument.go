package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/transvox/pkg/staging"
	"github.com/MrWong99/transvox/pkg/translate"
)

// InstrumentTranslator wraps p so every call is traced and counted under
// provider name.
func InstrumentTranslator(name string, p translate.Provider, m *Metrics) translate.Provider {
	return &translator{name: name, next: p, m: m}
}

// InstrumentStore wraps s so every remote call is traced and counted under
// provider name. ProcessedURL does no I/O and passes straight through.
func InstrumentStore(name string, s staging.Store, m *Metrics) staging.Store {
	return &store{name: name, next: s, m: m}
}

type translator struct {
	name string
	next translate.Provider
	m    *Metrics
}

func (t *translator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	var res *translate.Result
	err := t.m.observeCall(ctx, t.name, "translate", func(ctx context.Context) error {
		var err error
		res, err = t.next.Translate(ctx, req)
		return err
	})
	return res, err
}

type store struct {
	name string
	next staging.Store
	m    *Metrics
}

func (s *store) Upload(ctx context.Context, data []byte, opts staging.UploadOptions) (*staging.Resource, error) {
	var res *staging.Resource
	err := s.m.observeCall(ctx, s.name, "upload", func(ctx context.Context) error {
		var err error
		res, err = s.next.Upload(ctx, data, opts)
		return err
	})
	return res, err
}

func (s *store) ProcessedURL(res *staging.Resource) (string, error) {
	return s.next.ProcessedURL(res)
}

func (s *store) Download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := s.m.observeCall(ctx, s.name, "download", func(ctx context.Context) error {
		var err error
		data, err = s.next.Download(ctx, url)
		return err
	})
	return data, err
}

func (s *store) Delete(ctx context.Context, res *staging.Resource) error {
	return s.m.observeCall(ctx, s.name, "delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, res)
	})
}

func (m *Metrics) observeCall(ctx context.Context, provider, kind string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, "provider."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	defer span.End()

	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
	return err
}

var (
	_ translate.Provider = (*translator)(nil)
	_ staging.Store      = (*store)(nil)
)
