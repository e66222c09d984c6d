package mqtt

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// returnCoder is implemented by *pahomqtt.ConnectToken.
type returnCoder interface {
	ReturnCode() byte
}

// categorizeConnectError maps a failed connect token onto one of the
// CONNACK sentinels. Failures without a broker verdict (dial errors,
// TLS handshake errors) become ErrConnectionFailed.
func categorizeConnectError(err error, token any) error {
	var code byte
	if rc, ok := token.(returnCoder); ok {
		code = rc.ReturnCode()
	}

	var category error
	switch {
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion) || code == packets.ErrRefusedBadProtocolVersion:
		category = ErrBadProtocol
	case errors.Is(err, packets.ErrorRefusedIDRejected) || code == packets.ErrRefusedIDRejected:
		category = ErrIdentifierRejected
	case errors.Is(err, packets.ErrorRefusedServerUnavailable) || code == packets.ErrRefusedServerUnavailable:
		category = ErrServerUnavailable
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || code == packets.ErrRefusedBadUsernameOrPassword:
		category = ErrBadCredentials
	case errors.Is(err, packets.ErrorRefusedNotAuthorised) || code == packets.ErrRefusedNotAuthorised:
		category = ErrNotAuthorized
	default:
		category = ErrConnectionFailed
	}

	if err == nil {
		return category
	}
	return fmt.Errorf("%w: %w", category, err)
}
