package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerConfig controls the access log
type LoggerConfig struct {
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int64 // bytes captured per body
	SkipPaths       []string
}

func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		LogRequestBody:  true,
		LogResponseBody: false, // error bodies are always logged
		MaxBodySize:     2048,
		SkipPaths:       []string{"/health", "/api/v1/reports/stream"},
	}
}

func Logger(log logrus.FieldLogger) gin.HandlerFunc {
	return LoggerWithConfig(log, DefaultLoggerConfig())
}

// LoggerWithConfig writes one structured entry per request. Bodies are only
// captured up to MaxBodySize with secrets masked.
func LoggerWithConfig(log logrus.FieldLogger, config LoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		contentType := c.GetHeader("Content-Type")

		var requestBody string
		if config.LogRequestBody && c.Request.Body != nil && c.Request.ContentLength > 0 {
			if c.Request.ContentLength > config.MaxBodySize || strings.HasPrefix(contentType, "multipart/") {
				requestBody = "[omitted]"
			} else {
				bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, config.MaxBodySize))
				if err == nil {
					c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
					requestBody = sanitizeBody(bodyBytes, contentType)
				}
			}
		}

		writer := &limitedResponseWriter{
			ResponseWriter: c.Writer,
			maxSize:        config.MaxBodySize,
		}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		fields := logrus.Fields{
			"requestId": c.GetString("requestID"),
			"method":    c.Request.Method,
			"path":      path,
			"route":     c.FullPath(),
			"status":    status,
			"latencyMs": time.Since(start).Milliseconds(),
			"size":      writer.size,
			"ip":        c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields["query"] = truncateString(q, 200)
		}
		if userID := c.GetString("userID"); userID != "" {
			fields["userId"] = userID
		}
		if requestBody != "" {
			fields["requestBody"] = requestBody
		}
		if writer.body.Len() > 0 && (config.LogResponseBody || status >= 400) {
			fields["responseBody"] = truncateString(writer.body.String(), 500)
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := log.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

// limitedResponseWriter keeps the first maxSize bytes of the response
type limitedResponseWriter struct {
	gin.ResponseWriter
	body    bytes.Buffer
	size    int64
	maxSize int64
}

func (w *limitedResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)

	if w.size+int64(n) <= w.maxSize {
		w.body.Write(b[:n])
	}
	w.size += int64(n)

	return n, err
}

func sanitizeBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	if strings.Contains(contentType, "application/json") {
		var jsonData interface{}
		if json.Unmarshal(body, &jsonData) == nil {
			if formatted, err := json.Marshal(hideSensitiveFields(jsonData)); err == nil {
				return truncateString(string(formatted), 1024)
			}
		}
	}

	return truncateString(string(body), 200)
}

func hideSensitiveFields(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitiveField(strings.ToLower(key)) {
				result[key] = "********"
			} else {
				result[key] = hideSensitiveFields(value)
			}
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = hideSensitiveFields(item)
		}
		return result
	default:
		return v
	}
}

// microchip numbers and exact coordinates are as private as credentials here
func isSensitiveField(field string) bool {
	sensitive := []string{"password", "token", "secret", "key", "auth", "credential", "microchip", "lat", "lon"}
	for _, s := range sensitive {
		if strings.Contains(field, s) {
			return true
		}
	}
	return false
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
