package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailMasksLocalPart(t *testing.T) {
	assert.Equal(t, "a***@example.org", Email("email", "alice@example.org").Value)
	assert.Equal(t, "***", Email("email", "a@example.org").Value)
	assert.Equal(t, "***", Email("email", "not-an-email").Value)
}
