package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationFailedError(t *testing.T) {
	err := &ValidationFailedError{Message: "3 contract violation(s) in out/T1_single_page"}
	assert.Equal(t, "3 contract violation(s) in out/T1_single_page", err.Error())
}

func TestErrorTypeDetection(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		failed bool
	}{
		{"ValidationFailedError", &ValidationFailedError{Message: "bad"}, true},
		{"regular error", errors.New("config error"), false},
		{"wrapped ValidationFailedError", errors.Join(&ValidationFailedError{Message: "bad"}, errors.New("more")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failed *ValidationFailedError
			assert.Equal(t, tt.failed, errors.As(tt.err, &failed))
		})
	}
}
