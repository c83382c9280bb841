package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

type sampleRequest struct {
	FirstName string `validate:"required,person_name"`
	Email     string `validate:"omitempty,email"`
	Password  string `validate:"required,min=8"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		err := ValidateStruct(sampleRequest{
			FirstName: "Mary-Jane",
			Email:     "mj@example.com",
			Password:  "secret123",
		})
		assert.NoError(t, err)
	})

	t.Run("failures collect per-field detail", func(t *testing.T) {
		err := ValidateStruct(sampleRequest{
			FirstName: "Ana99",
			Email:     "not-an-email",
			Password:  "short",
		})
		require.Error(t, err)
		require.True(t, apperrors.IsValidation(err))

		appErr := apperrors.GetAppError(err)
		fields, ok := appErr.Details["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, fields, "firstname")
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(sampleRequest{Password: "secret123"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "firstname is required")
	})
}
