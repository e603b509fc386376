package app

import (
	"net/http"
	"strconv"

	"github.com/Toumari/NorthStar/app/entitlement"
	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the caller's subscription record, creating the default free
// record on first read, together with what it entitles them to. The client
// passes its current goal and tracker counts as query parameters.
func (s *Server) Me(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	usage, ok := usageFromQuery(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "goals and trackers must be non-negative integers"})
		return
	}

	record, err := s.store.EnsureProfile(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, err, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":       claims.Subject,
		"subscription": record,
		"entitlements": entitlement.Summarize(record, s.now(), usage),
	})
}

func usageFromQuery(c *gin.Context) (entitlement.Usage, bool) {
	var usage entitlement.Usage
	for key, dst := range map[string]*int{"goals": &usage.Goals, "trackers": &usage.Trackers} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return entitlement.Usage{}, false
		}
		*dst = n
	}
	return usage, true
}
