package locator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	valid := []string{
		"/",
		"/welcome/",
		"/a/",
		"/a/b/",
		"/state-1/",
		"/state_1/",
		"/orders/confirm-payment/",
		"/0/",
	}
	for _, s := range valid {
		assert.NoError(t, Validate(s), "locator %q", s)
		assert.True(t, IsValid(s), "locator %q", s)
	}
}

func TestValidateRejects(t *testing.T) {
	invalid := []string{
		"",
		"welcome",
		"welcome/",
		"/welcome",
		"//",
		"/Welcome/",
		"/wel come/",
		" /welcome/",
		"/welcome/ ",
		"/welcome//",
		"/привет/",
		"/wel.come/",
	}
	for _, s := range invalid {
		assert.Error(t, Validate(s), "locator %q", s)
		assert.False(t, IsValid(s), "locator %q", s)
	}
}

func TestValidateErrorType(t *testing.T) {
	err := Validate("/BAD/")
	require.Error(t, err)

	var invalid *InvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "/BAD/", invalid.Locator)
	assert.Contains(t, err.Error(), "/BAD/")
}
