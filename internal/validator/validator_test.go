package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	var nilPtr *int
	var nilMap map[string]int
	n := 3

	assert.NoError(t, Validate("ok", &n, 5, "name", map[string]int{}))
	assert.Error(t, Validate("nil", nil))
	assert.Error(t, Validate("nil pointer", nilPtr))
	assert.Error(t, Validate("nil map", nilMap))
	assert.Error(t, Validate("zero int", 0))
	assert.ErrorContains(t, Validate("empty string", &n, ""), "dep 1")
}
