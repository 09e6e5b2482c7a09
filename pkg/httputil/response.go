package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/managethefans/portal-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithCreated sends a 201 success response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Status: "success",
		Data:   data,
	})
}

// RespondWithError maps an application error to its HTTP status
func RespondWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch errors.CodeOf(err) {
	case errors.ErrNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case errors.ErrBadRequest:
		status = http.StatusBadRequest
		message = err.Error()
	case errors.ErrUnauthorized:
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.ErrForbidden:
		status = http.StatusForbidden
		message = err.Error()
	case errors.ErrConflict:
		status = http.StatusConflict
		message = err.Error()
	}

	c.JSON(status, Response{
		Status:  "error",
		Message: message,
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int) {
	totalPages := (total + pageSize - 1) / pageSize

	c.JSON(http.StatusOK, Response{
		Status: "success",
		Data: PaginatedResponse{
			Data: data,
			Pagination: Pagination{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPages,
			},
		},
	})
}
