package core

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json"
)

// respondBytes writes body with an explicit Content-Length so responses are never chunked.
func respondBytes(c *gin.Context, status int, contentType string, body []byte) {
	c.Header("Content-Length", strconv.Itoa(len(body)))
	c.Data(status, contentType, body)
}

func respondText(c *gin.Context, status int, msg string) {
	respondBytes(c, status, contentTypeText, []byte(msg))
}

// internalError logs the cause and answers with a generic 500; the cause never reaches the client.
func internalError(c *gin.Context, scope string, err error) {
	log.Printf("[%s] internal server error: %v", scope, err)
	respondText(c, http.StatusInternalServerError, "Internal Server error")
}

// BodyLimit caps how much of a request body handlers may read.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
