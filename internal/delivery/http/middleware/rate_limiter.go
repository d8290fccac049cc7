package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const rateWindow = time.Minute

// windowEntry tracks request counts per time window.
type windowEntry struct {
	count int
	start time.Time
}

// RateLimiter enforces a per-IP limit of maxRequests per minute. Stale
// entries are swept on the request path, at most once per window.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		clients   = make(map[string]*windowEntry)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > rateWindow {
			for k, e := range clients {
				if now.Sub(e.start) > 2*rateWindow {
					delete(clients, k)
				}
			}
			lastSweep = now
		}

		entry, exists := clients[ip]
		if !exists || now.Sub(entry.start) > rateWindow {
			clients[ip] = &windowEntry{count: 1, start: now}
			mu.Unlock()
			c.Next()
			return
		}

		if entry.count >= maxRequests {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Maximum %d requests per minute.", maxRequests),
			})
			return
		}

		entry.count++
		mu.Unlock()
		c.Next()
	}
}
