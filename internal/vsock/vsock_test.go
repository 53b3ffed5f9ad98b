package vsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("16:5000")
	require.NoError(t, err)
	assert.Equal(t, Addr{CID: 16, Port: 5000}, a)
	assert.Equal(t, "16:5000", a.String())
	assert.Equal(t, "vsock", a.Network())

	for _, bad := range []string{"", "16", "x:1", "1:y", "1:99999999999"} {
		_, err := ParseAddr(bad)
		assert.Error(t, err, bad)
	}
}
