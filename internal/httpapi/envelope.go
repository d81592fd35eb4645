package httpapi

import (
	"errors"
	"net/http"

	"questboard/pkg/errutil"
	"questboard/services/points"
	"questboard/services/reward"

	"github.com/gin-gonic/gin"
)

const userHeader = "X-User-ID"

// requireUser rejects requests without an authenticated user id. Session
// handling happens upstream; only the resolved identity crosses into this
// service.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(userHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "missing " + userHeader + " header",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetHeader(userHeader)
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

// fail maps a domain error onto the response envelope. Errors that carry a
// structured payload (shortfalls, balances) surface it under data so clients
// can explain the failure without another round trip.
func fail(c *gin.Context, err error) {
	status := errutil.StatusOf(err).HTTPStatus()

	var data any
	var rewardsErr *reward.InsufficientError
	var pointsErr *points.InsufficientError
	switch {
	case errors.As(err, &rewardsErr):
		data = rewardsErr
	case errors.As(err, &pointsErr):
		data = pointsErr
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// never leak raw storage errors to clients
		message = "internal error"
	}

	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}
