package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBase = errors.New("doc: invalid")

type item struct {
	ID   string `json:"id" validate:"required"`
	Kind string `yaml:"kind" validate:"oneof=a b"`
}

type doc struct {
	Count int    `json:"count" validate:"gt=0"`
	When  string `json:"when" validate:"datetime=2006-01-02"`
	Items []item `json:"items" validate:"dive"`
}

func TestStruct(t *testing.T) {
	v := New()

	require.NoError(t, Struct(v, errBase, doc{Count: 1, When: "2024-09-11", Items: []item{{ID: "x", Kind: "a"}}}))

	err := Struct(v, errBase, doc{Count: 0, When: "11/09/2024", Items: []item{{Kind: "c"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBase)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []FieldError{
		{Field: "count", Error: "must be greater than 0"},
		{Field: "when", Error: "must be a date in layout 2006-01-02"},
		{Field: "items[0].id", Error: "this field is required"},
		{Field: "items[0].kind", Error: "must be one of [a b]"},
	}, verr.Fields)
	assert.Contains(t, err.Error(), "doc: invalid: count: must be greater than 0")
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
	assert.Equal(t, "doc: invalid", (&ValidationError{Err: errBase}).Error())
}
