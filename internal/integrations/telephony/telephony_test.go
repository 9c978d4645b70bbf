package telephony

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	require.Equal(t, "+441234567890", Sanitize(" +44 1234 567890"))
	require.Equal(t, "01234567890", Sanitize("01234 567-890"))
	require.Equal(t, "+4412", Sanitize("+44+12"))
	require.Equal(t, "", Sanitize("call us"))
}

func TestURI(t *testing.T) {
	uri, err := URI("+44 1234 567890")
	require.NoError(t, err)
	require.Equal(t, "tel:+441234567890", uri)

	_, err = URI("+")
	require.True(t, errors.Is(err, ErrNoNumber))
}

func TestLogLauncher(t *testing.T) {
	l := NewLogLauncher(true)
	require.True(t, l.CanPlaceCalls())
	uri, err := l.Call(context.Background(), "0131 555 0100")
	require.NoError(t, err)
	require.Equal(t, "tel:01315550100", uri)

	off := NewLogLauncher(false)
	require.False(t, off.CanPlaceCalls())
	_, err = off.Call(context.Background(), "0131 555 0100")
	require.Error(t, err)
}
