package tiles

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := newConnectionError(backendPostgres, "open connection", cause)
	assert.Equal(t, "connection error (postgres): open connection: connection refused", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	err = newFormatError("bad descriptor %q", "x")
	assert.Equal(t, `format error: bad descriptor "x"`, err.Error())

	err = notImplemented(backendMongo, "change log")
	assert.Equal(t, "not implemented error (mongodb): change log is not supported", err.Error())
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{newConnectionError(backendSQLite, "open", errors.New("x")), KindConnection},
		{newSchemaError(backendMySQL, errors.New("x")), KindSchema},
		{newFormatError("bad"), KindFormat},
		{notImplemented(backendMongo, "op"), KindNotImplemented},
	}
	for _, tc := range tests {
		// Each predicate matches its own kind and nothing else, even
		// through wrapping.
		wrapped := fmt.Errorf("context: %w", tc.err)
		assert.Equal(t, tc.kind == KindConnection, IsConnectionError(wrapped), "%v", tc.err)
		assert.Equal(t, tc.kind == KindSchema, IsSchemaError(wrapped), "%v", tc.err)
		assert.Equal(t, tc.kind == KindFormat, IsFormatError(wrapped), "%v", tc.err)
		assert.Equal(t, tc.kind == KindNotImplemented, IsNotImplemented(wrapped), "%v", tc.err)
	}

	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsNotImplemented(errors.New("plain")))
}
