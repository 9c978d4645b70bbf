package telephony

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

var ErrNoNumber = errors.New("phone number has no digits")

// Launcher opens a call intent for a sanitised phone number. Launching is
// fire-and-forget; an error only means the intent could not be built.
type Launcher interface {
	CanPlaceCalls() bool
	Call(ctx context.Context, phone string) (string, error)
}

// Sanitize keeps digits and a single leading plus sign.
func Sanitize(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// URI builds the tel: URI for phone, or returns ErrNoNumber.
func URI(phone string) (string, error) {
	s := Sanitize(phone)
	if strings.TrimPrefix(s, "+") == "" {
		return "", ErrNoNumber
	}
	return "tel:" + s, nil
}

// LogLauncher records call intents in the log. It stands in for a device
// dialer on servers.
type LogLauncher struct {
	enabled bool
}

func NewLogLauncher(enabled bool) *LogLauncher {
	return &LogLauncher{enabled: enabled}
}

func (l *LogLauncher) CanPlaceCalls() bool { return l.enabled }

func (l *LogLauncher) Call(ctx context.Context, phone string) (string, error) {
	if !l.enabled {
		return "", errors.New("calls are not supported")
	}
	uri, err := URI(phone)
	if err != nil {
		return "", err
	}
	slog.Info("call intent", "uri", uri)
	return uri, nil
}
