// Package response writes the JSON envelopes shared by every endpoint.
package response

import (
	"net/http"
	"time"

	"payrails/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey must match the key set by the request-id middleware.
const requestIDKey = "request_id"

// SuccessResponse wraps a successful result.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse carries a stable error code for clients to branch on.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// PageMeta describes one page of a list.
type PageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// PagedData wraps list items with their paging metadata.
type PagedData struct {
	Items interface{} `json:"items"`
	Meta  PageMeta    `json:"meta"`
}

func OK(c *gin.Context, data interface{}) { success(c, http.StatusOK, data) }

func Created(c *gin.Context, data interface{}) { success(c, http.StatusCreated, data) }

// Paged sends a 200 with items and paging metadata.
func Paged(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	OK(c, PagedData{Items: items, Meta: PageMeta{Page: page, PageSize: pageSize, Total: total}})
}

// Error maps err to its status and code. Anything that is not an
// *apperror.AppError is reported as SYS_000 without leaking its text.
func Error(c *gin.Context, err error) {
	status, code, msg := http.StatusInternalServerError, apperror.CodeUnknown, "Internal server error"
	if appErr, ok := apperror.As(err); ok {
		status, code, msg = appErr.HTTPStatus, appErr.Code, appErr.Message
	}
	id, ts := stamp(c)
	c.JSON(status, ErrorResponse{ErrorCode: code, Message: msg, RequestID: id, Timestamp: ts})
}

func success(c *gin.Context, status int, data interface{}) {
	id, ts := stamp(c)
	c.JSON(status, SuccessResponse{Data: data, RequestID: id, Timestamp: ts})
}

// stamp returns the request id (minting one outside the middleware chain) and the UTC time.
func stamp(c *gin.Context) (string, string) {
	id := c.GetString(requestIDKey)
	if id == "" {
		id = uuid.NewString()
	}
	return id, time.Now().UTC().Format(time.RFC3339)
}
