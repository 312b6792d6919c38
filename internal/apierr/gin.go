package apierr

import (
	"log"

	"github.com/gin-gonic/gin"
)

// Respond writes the mapped status and JSON error body for err and aborts the gin
// context. Mirrors the teacher's toStatus boundary-mapping function, generalized from
// a single gRPC status.Error return to a gin JSON response.
func Respond(c *gin.Context, err error) {
	status, body := Body(err)
	if status >= 500 {
		log.Printf("internal error: %v", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// RespondDetail writes err as a {detail} body instead of Respond's {error, message}
// shape, for the one endpoint (MFA Arbiter /verify) spec.md §4.4 documents that way.
func RespondDetail(c *gin.Context, err error) {
	status, body := DetailBody(err)
	if status >= 500 {
		log.Printf("internal error: %v", err)
	}
	c.AbortWithStatusJSON(status, body)
}
