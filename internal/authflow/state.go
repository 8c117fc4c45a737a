package authflow

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const stateTokenByteLength = 32

// Sentinel errors for state handling.
var (
	ErrStateDecode   = errors.New("authflow.state.decode_failed")
	ErrStateMismatch = errors.New("authflow.state.mismatch")
)

// statePayload rides the OAuth state parameter: the CSRF token plus the
// post-login return path.
type statePayload struct {
	State     string `json:"state"`
	ReturnURL string `json:"returnUrl"`
}

// newStateToken returns 32 bytes of entropy, hex-encoded.
func newStateToken() (string, error) {
	buffer := make([]byte, stateTokenByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("authflow.state.random: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

// encodeState packs the payload as base64url JSON for the state parameter.
func encodeState(payload statePayload) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("authflow.state.encode: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(encoded), nil
}

// decodeState unpacks a state parameter produced by encodeState.
func decodeState(raw string) (statePayload, error) {
	decoded, decodeErr := base64.RawURLEncoding.DecodeString(raw)
	if decodeErr != nil {
		return statePayload{}, ErrStateDecode
	}
	var payload statePayload
	if unmarshalErr := json.Unmarshal(decoded, &payload); unmarshalErr != nil {
		return statePayload{}, ErrStateDecode
	}
	return payload, nil
}

// verifyState is the CSRF check: the token embedded in the returned state
// parameter must exactly equal the cookie-stored token. A missing cookie is
// a mismatch, unconditionally.
func verifyState(rawState string, cookieToken string) (statePayload, error) {
	if cookieToken == "" {
		return statePayload{}, ErrStateMismatch
	}
	payload, err := decodeState(rawState)
	if err != nil {
		return statePayload{}, err
	}
	if payload.State == "" ||
		subtle.ConstantTimeCompare([]byte(payload.State), []byte(cookieToken)) != 1 {
		return statePayload{}, ErrStateMismatch
	}
	return payload, nil
}
