package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/login-pii-pipeline/internal/auth"
	"github.com/PratikDhanave/login-pii-pipeline/internal/models"
)

const dateLayout = "2006-01-02"

// LoginCounter is the read side of the login store.
type LoginCounter interface {
	CountLogins(ctx context.Context, from, to time.Time, deviceType string) (int64, error)
}

// RegisterLoginRoutes registers the operator read endpoint.
//
// GET /logins/count?from=YYYY-MM-DD&to=YYYY-MM-DD[&device_type=...]
// - Requires X-API-Key
// - Counts rows whose create_date is in [from,to)
func RegisterLoginRoutes(r gin.IRoutes, st LoginCounter) {
	r.GET("/logins/count", func(c *gin.Context) {
		if auth.Operator(c) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		fromStr := c.Query("from")
		toStr := c.Query("to")
		deviceType := c.Query("device_type")

		if fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from, to are required"})
			return
		}

		from, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to, err := time.Parse(dateLayout, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}

		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountLogins(c.Request.Context(), from, to, deviceType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, models.LoginCountResponse{
			From:       fromStr,
			To:         toStr,
			DeviceType: deviceType,
			Count:      count,
		})
	})
}
