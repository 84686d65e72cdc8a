package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// ChargeAttributes annotates the New Relic transaction started by nrgin with
// the charge being operated on, and reports handler errors to it.
// It must be registered after nrgin.Middleware.
func ChargeAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if id := c.Param("id"); id != "" {
			txn.AddAttribute("charge_id", id)
		}
		if key := c.GetHeader(idempotencyHeader); key != "" {
			txn.AddAttribute("idempotency_key", key)
		}

		c.Next()

		txn.AddAttribute("replayed", c.Writer.Header().Get(replayHeader) == "true")
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
