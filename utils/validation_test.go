package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	SessionID string  `json:"session_id"`
	Rating    int     `json:"rating" validate:"required,gte=1,lte=5"`
	Role      string  `json:"role" validate:"required,oneof=user assistant system"`
	TopP      float64 `json:"top_p" validate:"gte=0,lte=1"`
}

func TestValidateStruct_Valid(t *testing.T) {
	err := ValidateStruct(sampleRequest{Rating: 3, Role: "user", TopP: 0.5})
	assert.NoError(t, err)
}

func TestValidateStruct_Invalid(t *testing.T) {
	err := ValidateStruct(sampleRequest{Rating: 9, Role: "robot", TopP: 2})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	fields := GetValidationFields(err)
	assert.Contains(t, fields, "Rating")
	assert.Contains(t, fields, "Role")
	assert.Contains(t, fields, "TopP")
	assert.Contains(t, fields["Role"], "one of")
}

func TestIsValidationError_OtherError(t *testing.T) {
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
