package handlers

import (
	"net/http"
	"strconv"

	"github.com/artpro/stockpulse/pkg/auth"
	"github.com/artpro/stockpulse/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// principal returns the caller, writing a 401 when none is attached
func principal(c *gin.Context) (*auth.Principal, bool) {
	p := middleware.PrincipalFrom(c)
	if p == nil || p.User == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return nil, false
	}
	return p, true
}

// idParam parses a positive numeric path parameter, writing a 400 otherwise
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// serverError logs err, records it for error reporting and writes a 500
func serverError(c *gin.Context, logger zerolog.Logger, err error, message string) {
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
