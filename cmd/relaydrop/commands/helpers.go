package commands

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"unicode/utf8"

	"github.com/relaydrop/relaydrop/internal/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	relayFlagDesc = `Address of relay server. Accepted formats:
  - 127.0.0.1:8000
  - [::1]:8000
  - somedomain.com
	`
	tuiStyleFlagDesc = "Style of the tui (rich|raw)"
)

var ErrInvalidAddress = errors.New("invalid address provided")

// validateAddress validates a hostname or IP, optionally with a port.
func validateAddress(addr string) error {
	host := addr
	if h, port, err := net.SplitHostPort(addr); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return ErrInvalidAddress
		}
		host = h
	}
	if host == "" {
		return ErrInvalidAddress
	}
	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}
	if err := validateHostname(host); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return nil
}

// validateHostname returns an error if the domain name is not valid.
// See https://tools.ietf.org/html/rfc1034#section-3.5 and
// https://tools.ietf.org/html/rfc1123#section-2.
func validateHostname(name string) error {
	if len(name) > 255 {
		return fmt.Errorf("name length is %d, can't exceed 255", len(name))
	}
	start := 0
	for i := 0; i <= len(name); i++ {
		if i < len(name) && name[i] != '.' {
			b := name[i]
			if !(b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '-' || b >= 'A' && b <= 'Z') {
				c, _ := utf8.DecodeRuneInString(name[i:])
				if c == utf8.RuneError {
					return fmt.Errorf("invalid rune at offset %d", i)
				}
				return fmt.Errorf("invalid character '%c' at offset %d", c, i)
			}
			continue
		}
		label := name[start:i]
		switch {
		case len(label) == 0:
			return fmt.Errorf("empty label at offset %d", start)
		case len(label) > 63:
			return fmt.Errorf("byte length of label '%s' is %d, can't exceed 63", label, len(label))
		case label[0] == '-' || label[len(label)-1] == '-':
			return fmt.Errorf("label '%s' at offset %d begins or ends with a hyphen", label, start)
		}
		if i == len(name) && label[0] >= '0' && label[0] <= '9' {
			return fmt.Errorf("top level domain '%s' begins with a digit", label)
		}
		start = i + 1
	}
	return nil
}

// setupLoggingFromViper returns a logger writing to `.relaydrop-<cmd>.log`
// when verbose logging is configured, and a no-op logger otherwise.
func setupLoggingFromViper(cmd string) (*zap.Logger, error) {
	if !viper.GetBool("verbose") {
		return zap.NewNop(), nil
	}
	lgr, err := logger.NewFile(fmt.Sprintf(".relaydrop-%s.log", cmd))
	if err != nil {
		return nil, fmt.Errorf("could not log to the provided file: %w", err)
	}
	return lgr.With(zap.String("command", cmd)), nil
}
