package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"lost", StatusLost, false},
		{"found", StatusFound, false},
		{"", "", true},
		{"   ", "", true},
		{"LOST", "", true},
		{"missing", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, StatusFound, StatusLost.Opposite())
	assert.Equal(t, StatusLost, StatusFound.Opposite())
	assert.Equal(t, StatusFound, SearchQuery{Status: StatusLost}.TargetStatus())
}

func TestBeforeCreateAssignsID(t *testing.T) {
	a := &Animal{}
	require.NoError(t, a.BeforeCreate(nil))
	assert.Len(t, a.ID, 36)

	b := &Animal{ID: "fixed"}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, "fixed", b.ID)
}
