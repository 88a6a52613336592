package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnquoteArgs(t *testing.T) {
	data, err := UnquoteArgs([]string{`R00\r`})
	require.NoError(t, err)
	assert.Equal(t, []byte("R00\r"), data)

	data, err = UnquoteArgs([]string{"??", `W01\x41BC\r`})
	require.NoError(t, err)
	assert.Equal(t, []byte("?? W01ABC\r"), data)

	_, err = UnquoteArgs([]string{`bad\q`})
	assert.Error(t, err)
}
