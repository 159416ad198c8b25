package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// ContractTraceMiddleware annotates the New Relic transaction started by
// nrgin with the caller and resource of the request, and reports handler errors.
// Without a transaction it does nothing.
func ContractTraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if caller, ok := CallerIdentity(c); ok {
			txn.AddAttribute("caller", string(caller))
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}

		c.Next()

		// Record error if present.
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
