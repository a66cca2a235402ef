package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maintenance-gate/internal/maintenance"
)

// maxManagementBody caps how much of a management request body is read.
const maxManagementBody = 1 << 20

// Maintenance runs the gate in front of every route. Requests the gate does
// not answer continue down the chain untouched.
func Maintenance(gate *maintenance.Gate) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req := maintenance.Request{
			Method: ctx.Request.Method,
			Path:   ctx.Request.URL.Path,
			Query:  ctx.Request.URL.Query(),
		}

		if gate.IsManagementRequest(req.Path) && ctx.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxManagementBody))
			if err != nil {
				ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "could not read request body"})
				return
			}
			req.Body = body
		}

		resp, err := gate.Handle(ctx.Request.Context(), req)
		if err != nil {
			_ = ctx.Error(err)
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "maintenance state unavailable"})
			return
		}
		if resp == nil {
			ctx.Next()
			return
		}
		if resp.Body == nil {
			ctx.AbortWithStatus(resp.Status)
			return
		}
		ctx.AbortWithStatusJSON(resp.Status, resp.Body)
	}
}
