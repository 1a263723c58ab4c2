package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, ExitError{Code: Usage, Message: "bad delay 7"}, Usagef("bad delay %d", 7))
	assert.Equal(t, NotFound, NotFoundf("chat %q not found", "x").Code)
	assert.Equal(t, "cancelled", Cancel().Error())
}

func TestWrappedExitErrorIsFound(t *testing.T) {
	err := fmt.Errorf("show chat: %w", NotFoundf("chat not found"))
	var exitErr ExitError
	assert.True(t, errors.As(err, &exitErr))
	assert.Equal(t, NotFound, exitErr.Code)
}
