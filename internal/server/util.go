package server

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
)

// response is the envelope every API call returns. Code carries the stable
// error code from the domain taxonomy; Message is the human-readable text
// the dashboard toasts.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func ok(c *gin.Context, data any) {
	writeJSON(c, 200, response{Success: true, Data: data})
}
