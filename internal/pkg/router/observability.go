package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
	"github.com/shandysiswandi/gosend/internal/pkg/config"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxLoggedBodyBytes = 32 << 10

// observer traces, measures and logs every request and response.
type observer struct {
	masker   *instrument.Masker
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newObserver(cfg config.Config, ins instrument.Instrumentation) *observer {
	var fields []string
	if cfg != nil {
		fields = cfg.GetArray("instrument.log_mask_fields")
	}

	o := &observer{
		masker: instrument.NewMasker(fields),
		tracer: ins.Tracer("http.server"),
	}

	meter := ins.Meter("http.server")
	var err error
	if o.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests received")); err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}
	if o.duration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}

	return o
}

func (o *observer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := matchedRoutePath(r)
		base := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.HTTPRouteKey.String(route),
		}

		ctx, span := o.tracer.Start(r.Context(), r.Method+" "+route, trace.WithAttributes(base...))
		defer span.End()

		slog.InfoContext(ctx, "request received",
			"method", r.Method,
			"path", route,
			"uri", r.RequestURI,
			"headers", o.headers(r.Header),
			"body", o.requestBody(r),
		)

		rec := newResponseRecorder(w, maxLoggedBodyBytes)
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.Status()
		attrs := append(base, semconv.HTTPResponseStatusCodeKey.Int(status))
		o.finishSpan(span, rec, status, r)
		if o.requests != nil {
			o.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		if o.duration != nil {
			o.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
		}

		slog.InfoContext(ctx, "response sent",
			"method", r.Method,
			"path", route,
			"uri", r.RequestURI,
			"status", status,
			"bytes", rec.size,
			"latency_ms", time.Since(start).Milliseconds(),
			"body", o.responseBody(rec),
		)
	})
}

func (o *observer) finishSpan(span trace.Span, rec *responseRecorder, status int, r *http.Request) {
	if rec.err != nil {
		span.RecordError(rec.err)
	}

	switch {
	case status >= http.StatusInternalServerError && rec.err != nil:
		span.SetStatus(codes.Error, rec.err.Error())
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		semconv.HTTPResponseStatusCodeKey.Int(status),
		semconv.NetworkProtocolVersionKey.String(r.Proto),
		semconv.ServerAddressKey.String(r.Host),
		attribute.String("http.target", r.URL.Path),
		attribute.String("http.user_agent", r.UserAgent()),
		attribute.Int("http.response_content_length", rec.size),
	)
}

func (o *observer) headers(h http.Header) http.Header {
	out := h.Clone()
	for key := range out {
		if o.masker.Hides(key) {
			out.Set(key, "***")
		}
	}
	return out
}

func (o *observer) requestBody(r *http.Request) any {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "multipart/") {
		return "<multipart body omitted>"
	}

	body := peekBody(r)
	if len(body) == 0 {
		return nil
	}

	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			return o.masker.Data(lo.MapValues(values, func(v []string, _ string) any {
				if len(v) == 1 {
					return v[0]
				}
				return lo.ToAnySlice(v)
			}))
		}
	}

	return o.payload(body)
}

func (o *observer) responseBody(rec *responseRecorder) any {
	if rec.body.Len() == 0 {
		return nil
	}

	var body any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/x-ndjson") {
		body = fmt.Sprintf("<%d streamed records>", bytes.Count(rec.body.Bytes(), []byte("\n")))
	} else {
		body = o.payload(rec.body.Bytes())
	}

	if rec.capped {
		return map[string]any{"body": body, "truncated": true}
	}
	return body
}

// payload decodes JSON with masking and falls back to plain text.
func (o *observer) payload(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		return o.masker.Data(v)
	}
	if !utf8.Valid(b) {
		return "<binary body omitted>"
	}
	return string(b)
}

// peekBody reads up to maxLoggedBodyBytes of the request body and restores
// it for the handler.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	//nolint:errcheck // best effort for logging only
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	return head
}

func matchedRoutePath(r *http.Request) string {
	if pattern := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
