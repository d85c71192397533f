package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock("bulk-1", decimal.NewFromInt(3), decimal.NewFromInt(5))

	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.Equal(t, "3", err.Details["available"])
	assert.Equal(t, "5", err.Details["requested"])
	assert.True(t, IsInsufficientStock(err))
	assert.False(t, IsNotFound(err))
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load bulk item: %w", NotFound("bulk item"))
	assert.True(t, IsNotFound(wrapped))

	var appErr *AppError
	assert.True(t, As(wrapped, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Equal(t, "bulk item not found", appErr.Message)
}

func TestValidationKeepsDetails(t *testing.T) {
	err := Validation(map[string]string{"quantity": "must be greater than 0"})

	assert.True(t, IsValidation(err))
	assert.Equal(t, "must be greater than 0", err.Details["quantity"])
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
}
