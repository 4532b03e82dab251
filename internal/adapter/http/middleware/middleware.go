package middleware

import (
	"net/http"
	"strings"
	"time"

	"payrails/internal/core/ports"
	"payrails/pkg/apperror"
	"payrails/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxAccountID = "account_id"
	CtxRequestID = "request_id"
)

// JWTAuth validates the bearer token and stores the caller's account id.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abort(c, apperror.ErrInvalidToken())
			return
		}
		claims, err := tokenSvc.Validate(raw)
		if err != nil {
			log.Debug().Err(err).Str("request_id", c.GetString(CtxRequestID)).Msg("bearer token rejected")
			abort(c, apperror.ErrInvalidToken())
			return
		}
		c.Set(CtxAccountID, claims.AccountID)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// AccountID returns the authenticated caller, if any.
func AccountID(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxAccountID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// RequestID propagates X-Request-ID or mints one, for logs and response envelopes.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger writes one line per request; 4xx log at warn, 5xx at error.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}

		ev := log.WithLevel(level).
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if id, ok := AccountID(c); ok {
			ev = ev.Str("account_id", id)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("http request")
	}
}

// Recovery turns a handler panic into a SYS_001 response.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error().
				Interface("panic", r).
				Str("request_id", c.GetString(CtxRequestID)).
				Str("path", c.Request.URL.Path).
				Msg("handler panicked")
			abort(c, apperror.InternalError(nil))
		}()
		c.Next()
	}
}

// MaxBodySize limits the request body. Reads past the limit fail and the
// JSON binding surfaces a validation error.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
