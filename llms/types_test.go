package llms

import (
	"errors"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
)

func TestConvertToolInfoToDefinition(t *testing.T) {
	schema := &jsonschema.Schema{Type: "object"}
	def := ConvertToolInfoToDefinition("search", "searches things", schema)

	assert.Equal(t, "search", def.Name)
	assert.Equal(t, "searches things", def.Description)
	assert.Same(t, schema, def.Parameters)
}

func TestProviderErrorRecoverable(t *testing.T) {
	cases := []struct {
		kind        ErrorKind
		recoverable bool
	}{
		{ErrRequest, true},
		{ErrQuotaExceeded, true},
		{ErrSerialization, false},
		{ErrModelResponse, false},
		{ErrUnsupportedProvider, false},
	}
	for _, tc := range cases {
		err := NewProviderError(tc.kind, "boom", nil)
		assert.Equal(t, tc.recoverable, err.Recoverable(), "kind=%s", tc.kind)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("transport failed")
	err := NewProviderError(ErrRequest, "request failed", inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "transport failed")
	assert.Contains(t, err.Error(), "request failed")
}

func TestProviderErrorWithoutWrappedErr(t *testing.T) {
	err := NewProviderError(ErrUnsupportedProvider, "no such provider", nil)
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "unsupported_provider: no such provider", err.Error())
}
