package haio_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qaorchestrator/haio"
)

func TestStringContainsVersion(t *testing.T) {
	assert.True(t, strings.Contains(haio.String(), haio.Version))
}
