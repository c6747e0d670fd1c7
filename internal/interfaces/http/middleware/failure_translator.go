package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// TraceIDHeader carries the trace id of a failed request back to the caller
	TraceIDHeader = "X-Trace-Id"
	// FailureLabelKey holds the envelope error label of a rendered failure
	FailureLabelKey = "failure_label"
)

// marshalEnvelope is swapped in tests to exercise the serialization fallback
var marshalEnvelope = json.Marshal

// failure is the HTTP rendering of an error
type failure struct {
	status  int
	label   string
	message string
	details []string
}

// FailureTranslator renders every error attached to the request with c.Error,
// and every panic, as an ErrorEnvelope. It must be the outermost error-handling
// middleware so that nothing else writes error bodies.
func FailureTranslator(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("failure_translator")

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			logger.WithLogger(c.Request.Context(), log).Error("Recovered from panic",
				zap.Any("panic", r),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			)
			c.Abort()
			if !c.Writer.Written() {
				render(c, log, fmt.Errorf("panic: %v", r))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		render(c, log, c.Errors.Last().Err)
	}
}

func render(c *gin.Context, log *zap.Logger, err error) {
	ctx := c.Request.Context()
	f := classify(err)
	c.Set(FailureLabelKey, f.label)

	l := logger.WithLogger(ctx, log)
	if f.status >= http.StatusInternalServerError {
		l.Error("Request failed",
			zap.Int("status", f.status),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	} else {
		l.Debug("Request rejected",
			zap.Int("status", f.status),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	traceID := telemetry.GetTraceID(ctx)
	if traceID != "" {
		c.Header(TraceIDHeader, traceID)
	}

	body, mErr := marshalEnvelope(dto.NewErrorEnvelope(f.status, f.label, f.message, c.Request.URL.Path, traceID, f.details))
	if mErr != nil {
		l.Error("Failed to serialize error envelope", zap.Error(mErr))
		c.Status(f.status)
		c.Writer.WriteHeaderNow()
		return
	}
	c.Data(f.status, "application/json; charset=utf-8", body)
}

// classify maps an error to its rendering. First match wins.
func classify(err error) failure {
	if errors.Is(err, dto.ErrRouteNotFound) {
		return failure{http.StatusNotFound, dto.LabelServiceNotFound, dto.MessageRouteLookup, nil}
	}

	var statusErr *dto.StatusError
	if errors.As(err, &statusErr) {
		return failure{statusErr.Status, statusErr.Reason, statusErr.Message, statusErr.Details}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status, label := dto.GetHTTPStatus(domainErr.Code)
		if status >= http.StatusInternalServerError {
			return failure{status, label, dto.MessageInternal, nil}
		}
		return failure{status, label, domainErr.Message, domainErr.Details}
	}

	var downstream *shared.DownstreamError
	if errors.As(err, &downstream) {
		if downstream.Kind == shared.DownstreamTimeout {
			return failure{http.StatusGatewayTimeout, dto.LabelGatewayTimeout, downstream.PublicMessage(), nil}
		}
		return failure{http.StatusServiceUnavailable, dto.LabelServiceUnavailable, downstream.PublicMessage(), nil}
	}

	switch {
	case resilience.IsConnectionFailure(err):
		return failure{http.StatusServiceUnavailable, dto.LabelServiceUnavailable, "The upstream service is currently unavailable", nil}
	case resilience.IsTimeout(err):
		return failure{http.StatusGatewayTimeout, dto.LabelGatewayTimeout, "The upstream service did not respond in time", nil}
	}

	return failure{http.StatusInternalServerError, dto.LabelInternalServerError, dto.MessageInternal, nil}
}
