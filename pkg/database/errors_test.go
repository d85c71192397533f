package database

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantNil    bool
		wantStatus int
		wantField  string
	}{
		{name: "not a pq error", err: fmt.Errorf("boom"), wantNil: true},
		{
			name:       "negative quantity check",
			err:        &pq.Error{Code: "23514", Constraint: "bulk_items_quantity_non_negative"},
			wantStatus: http.StatusBadRequest,
			wantField:  "quantity",
		},
		{
			name:       "duplicate administration reconcile",
			err:        fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "dispense_log_administration_log_uniq"}),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing column",
			err:        &pq.Error{Code: "23502", Column: "unit"},
			wantStatus: http.StatusBadRequest,
			wantField:  "unit",
		},
		{name: "unmapped code", err: &pq.Error{Code: "40001"}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPQError(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			if tt.wantField != "" {
				assert.True(t, errors.IsValidation(got))
				assert.Contains(t, got.Details, tt.wantField)
			}
		})
	}
}
