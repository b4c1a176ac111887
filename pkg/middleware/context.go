package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
)

const (
	// HeaderUserID is the header key for the acting user
	HeaderUserID = "X-User-ID"
	// HeaderSourceSystem is the header key for the submitting source system
	HeaderSourceSystem = "X-Source-System"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetMethod(ctx, req.Method)
			ctx = appcontext.SetRoute(ctx, req.URL.Path)
			ctx = appcontext.SetRemoteIP(ctx, c.RealIP())
			ctx = appcontext.SetUserID(ctx, req.Header.Get(HeaderUserID))
			ctx = appcontext.SetSourceSystem(ctx, req.Header.Get(HeaderSourceSystem))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
