package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsAreRegisteredAtInit(t *testing.T) {
	_, ok := App("zeek-websocket")
	require.True(t, ok)

	_, ok = Backbone("amqp")
	require.True(t, ok)
}

func TestUnknownNamesAreNotFound(t *testing.T) {
	_, ok := App("does-not-exist")
	assert.False(t, ok)

	_, ok = Backbone("does-not-exist")
	assert.False(t, ok)
}

func TestErrorHelpersNameTheMissingKey(t *testing.T) {
	err := ErrUnknownApp("foo")
	assert.Contains(t, err.Error(), "foo")

	err = ErrUnknownBackbone("bar")
	assert.Contains(t, err.Error(), "bar")
}
