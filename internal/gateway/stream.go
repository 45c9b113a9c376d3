package gateway

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MrWong99/transvox/internal/observe"
	"github.com/MrWong99/transvox/internal/pipeline"
)

const (
	// streamReadTimeout bounds how long the client may take to send the
	// header and the audio message.
	streamReadTimeout = 30 * time.Second

	// streamWriteTimeout bounds each outgoing event.
	streamWriteTimeout = 5 * time.Second

	// headerReadLimit caps the JSON header message.
	headerReadLimit = 4 << 10
)

// streamHeader is the first (text) message of a streaming session.
type streamHeader struct {
	SrcLang  string `json:"srcLang"`
	TgtLang  string `json:"tgtLang"`
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
}

// Stream handles GET /api/audio/stream.
//
// Protocol: the client sends a JSON header, then one binary message holding
// the audio. The server answers with {"type":"stage"} events for every
// pipeline transition and a final {"type":"result"} carrying the same
// envelope as POST /api/audio/process, then closes the connection.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := websocket.Accept(newUpgradeWriter(c.Writer), c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		return
	}
	defer conn.CloseNow()

	session := uuid.NewString()
	ctx := c.Request.Context()
	log := observe.Logger(ctx, "session", session)

	sub, err := h.readSubmission(ctx, conn)
	if err != nil {
		if pipeline.KindOf(err) != pipeline.KindValidation {
			log.Debug("stream client went away before sending audio", "err", err)
			return
		}
		h.sendResult(ctx, conn, session, nil, err)
		if pipeline.PublicMessage(err) == pipeline.MsgTooLarge {
			conn.Close(websocket.StatusMessageTooBig, pipeline.MsgTooLarge)
			return
		}
		conn.Close(websocket.StatusPolicyViolation, "invalid submission")
		return
	}

	// No further client messages are expected; CloseRead cancels runCtx
	// when the peer disconnects so remote calls stop early.
	runCtx := conn.CloseRead(ctx)

	obs := pipeline.ObserverFunc(func(s pipeline.Stage) {
		if err := writeEvent(runCtx, conn, gin.H{
			"type":    "stage",
			"session": session,
			"stage":   s.String(),
		}); err != nil {
			log.Debug("stage event not delivered", "stage", s.String(), "err", err)
		}
	})

	out, err := h.proc.Process(runCtx, sub, obs)
	h.sendResult(runCtx, conn, session, out, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) readSubmission(ctx context.Context, conn *websocket.Conn) (pipeline.Submission, error) {
	rctx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	defer cancel()

	conn.SetReadLimit(headerReadLimit)
	var hdr streamHeader
	if err := wsjson.Read(rctx, conn, &hdr); err != nil {
		return pipeline.Submission{}, err
	}

	// The ceiling is enforced below, not by the library: its limit closes
	// with 1009 before the failure envelope can be written.
	conn.SetReadLimit(-1)
	typ, r, err := conn.Reader(rctx)
	if err != nil {
		return pipeline.Submission{}, err
	}
	if typ != websocket.MessageBinary {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgNoFile)
	}
	data, err := io.ReadAll(io.LimitReader(r, h.maxUpload+1))
	if err != nil {
		return pipeline.Submission{}, err
	}
	if int64(len(data)) > h.maxUpload {
		return pipeline.Submission{}, pipeline.NewValidationError(pipeline.MsgTooLarge)
	}

	return pipeline.Submission{
		Audio:      data,
		Filename:   hdr.Filename,
		MIMEType:   hdr.MIMEType,
		SourceLang: hdr.SrcLang,
		TargetLang: hdr.TgtLang,
	}, nil
}

func (h *Handler) sendResult(ctx context.Context, conn *websocket.Conn, session string, out *pipeline.Outcome, err error) {
	var body gin.H
	if err != nil {
		_, body = h.failureBody(err)
	} else {
		body = successBody(out)
	}
	body["type"] = "result"
	body["session"] = session
	if werr := writeEvent(ctx, conn, body); werr != nil {
		observe.Logger(ctx, "session", session).Debug("stream result not delivered", "err", werr)
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), streamWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}

// upgradeWriter hands websocket.Accept the writer beneath gin's. gin only
// buffers WriteHeader, so the 101 must go to the server's writer directly.
// Hijacking still goes through gin, which marks the response as written and
// keeps gin from sending a status of its own after the handler returns.
type upgradeWriter struct {
	http.ResponseWriter
	gw gin.ResponseWriter
}

func newUpgradeWriter(gw gin.ResponseWriter) upgradeWriter {
	var w http.ResponseWriter = gw
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}
	return upgradeWriter{ResponseWriter: w, gw: gw}
}

func (w upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.gw.Hijack()
}
