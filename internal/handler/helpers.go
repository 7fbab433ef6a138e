package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func intQueryPtr(c *gin.Context, key string) *int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return &i
		}
	}
	return nil
}

func int64QueryPtr(c *gin.Context, key string) *int64 {
	if val := c.Query(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return &i
		}
	}
	return nil
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

// timeQueryPtr accepts RFC3339 timestamps or plain dates.
func timeQueryPtr(c *gin.Context, key string) *time.Time {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse("2006-01-02", val); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}
