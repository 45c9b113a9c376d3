// Package gateway exposes the pipeline over HTTP.
//
// Two routes are registered:
//
//   - POST /api/audio/process: multipart upload (file, srcLang, tgtLang),
//     answered with a single JSON envelope.
//   - GET /api/audio/stream: WebSocket variant that pushes a stage event for
//     every pipeline transition followed by the same envelope.
//
// Envelopes are {success, transcribed_text, translated_text, message?} on
// success and {success:false, message, stack?} on failure. The stack is only
// included while debug mode is on.
package gateway

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/MrWong99/transvox/internal/pipeline"
)

// DefaultMaxUploadBytes is the upload ceiling when none is configured.
const DefaultMaxUploadBytes = 10 << 20

// formOverhead is the slack allowed on top of the file ceiling for multipart
// boundaries and the language fields.
const formOverhead = 64 << 10

// Processor runs one submission. *pipeline.Orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, sub pipeline.Submission, obs pipeline.Observer) (*pipeline.Outcome, error)
}

var _ Processor = (*pipeline.Orchestrator)(nil)

// Handler serves the audio routes. Safe for concurrent use.
type Handler struct {
	proc           Processor
	maxUpload      int64
	originPatterns []string
	debug          atomic.Bool
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxUploadBytes sets the per-file size ceiling.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithDebug sets the initial debug mode. See [Handler.SetDebug].
func WithDebug(v bool) Option {
	return func(h *Handler) { h.debug.Store(v) }
}

// WithOriginPatterns allows cross-origin WebSocket clients whose Origin host
// matches one of patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = append(h.originPatterns, patterns...) }
}

// New creates a Handler around proc.
func New(proc Processor, opts ...Option) *Handler {
	registerValidators()
	h := &Handler{proc: proc, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetDebug toggles stack traces in failure envelopes.
func (h *Handler) SetDebug(v bool) { h.debug.Store(v) }

// Register adds the audio routes to r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/api/audio/process", h.Process)
	r.GET("/api/audio/stream", h.Stream)
}

var validatorsOnce sync.Once

func registerValidators() {
	validatorsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", validators.NotBlank)
		}
	})
}

type processForm struct {
	File    *multipart.FileHeader `form:"file" binding:"required"`
	SrcLang string                `form:"srcLang" binding:"required,notblank"`
	TgtLang string                `form:"tgtLang" binding:"required,notblank"`
}

// Process handles POST /api/audio/process.
func (h *Handler) Process(c *gin.Context) {
	limit := h.maxUpload + formOverhead
	if c.Request.ContentLength > limit {
		h.fail(c, pipeline.NewValidationError(pipeline.MsgTooLarge))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	sub, err := h.bind(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	out, err := h.proc.Process(c.Request.Context(), sub, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successBody(out))
}

func (h *Handler) bind(c *gin.Context) (pipeline.Submission, error) {
	var form processForm
	if err := c.ShouldBind(&form); err != nil {
		return pipeline.Submission{}, bindError(err)
	}
	if form.File.Size > h.maxUpload {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgTooLarge)
	}

	f, err := form.File.Open()
	if err != nil {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgNoFile)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgNoFile)
	}
	if int64(len(data)) > h.maxUpload {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgTooLarge)
	}

	return pipeline.Submission{
		Audio:      data,
		Filename:   form.File.Filename,
		MIMEType:   form.File.Header.Get("Content-Type"),
		SourceLang: form.SrcLang,
		TargetLang: form.TgtLang,
	}, nil
}

// bindError maps a gin binding failure to the caller-facing validation
// message.
func bindError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return pipeline.NewValidationError(pipeline.MsgTooLarge)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "File" {
				return pipeline.NewValidationError(pipeline.MsgNoFile)
			}
		}
		return pipeline.NewValidationError(pipeline.MsgLanguagesNeeded)
	}
	// Not a multipart body at all.
	return pipeline.NewValidationError(pipeline.MsgNoFile)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := h.failureBody(err)
	c.JSON(status, body)
}

func (h *Handler) failureBody(err error) (int, gin.H) {
	body := gin.H{
		"success": false,
		"message": pipeline.PublicMessage(err),
	}
	if pipeline.KindOf(err) == pipeline.KindValidation {
		return http.StatusBadRequest, body
	}
	if h.debug.Load() {
		body["stack"] = pipeline.StackOf(err)
	}
	return http.StatusInternalServerError, body
}

func successBody(out *pipeline.Outcome) gin.H {
	body := gin.H{
		"success":          true,
		"transcribed_text": out.TranscribedText,
		"translated_text":  out.TranslatedText,
	}
	if out.Message != "" {
		body["message"] = out.Message
	}
	return body
}
