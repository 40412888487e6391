package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/validation"
)

type noteInput struct {
	Title string `json:"title" validate:"notblank,max=200"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	ID    int64  `json:"id" validate:"gt=0"`
}

func TestValidator_Success(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(noteInput{Title: "Groceries", Color: "#6200EE", ID: 1}))
	assert.NoError(t, v.Validate(noteInput{Title: "no color", ID: 2}))
}

func TestValidator_Errors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		in        noteInput
		wantField string
		wantMsg   string
	}{
		{"empty title", noteInput{ID: 1}, "title", "is required"},
		{"whitespace title", noteInput{Title: " \t ", ID: 1}, "title", "is required"},
		{"bad color", noteInput{Title: "x", Color: "purple", ID: 1}, "color", "must be a hex color such as #6200EE"},
		{"zero id", noteInput{Title: "x"}, "id", "must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestValidator_SummaryIsSorted(t *testing.T) {
	v := validation.New()

	err := v.Validate(noteInput{})
	require.Error(t, err)
	assert.Equal(t, "validation failed: id must be greater than 0; title is required", err.Error())
}
