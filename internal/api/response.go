package api

import (
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes err with the status its error code maps to
func respondError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	body := gin.H{"error": err.Error(), "timestamp": time.Now()}
	if code := errors.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.JSON(status, body)
}

// bindError reports a malformed request body
func bindError(c *gin.Context, err error) {
	respondError(c, errors.InvalidInput("Invalid request body: "+err.Error(), err))
}

// pathID parses the :id route parameter
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput("Invalid id: "+c.Param("id"), err))
		return uuid.Nil, false
	}
	return id, true
}
