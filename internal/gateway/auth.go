package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/flipmatch/flipmatch/internal/game"
)

// ChannelAuthorizer decides whether a connection may attach to a game
// topic and mints the token the client presents to the transport.
type ChannelAuthorizer interface {
	Authorize(socketID, channel string) (string, error)
}

// HMACAuthorizer signs socket/channel pairs with a shared secret, the same
// shape hosted pub/sub providers use for private channel auth.
type HMACAuthorizer struct {
	key    string
	secret []byte
}

// NewHMACAuthorizer creates an authorizer with the given app key and secret.
func NewHMACAuthorizer(key, secret string) *HMACAuthorizer {
	return &HMACAuthorizer{key: key, secret: []byte(secret)}
}

// Authorize returns a signed token for the socket/channel pair, or
// ErrAuthorizationDenied when the request is malformed or the channel is
// not a game topic.
func (a *HMACAuthorizer) Authorize(socketID, channel string) (string, error) {
	if socketID == "" || channel == "" {
		return "", game.ErrAuthorizationDenied
	}
	if !strings.HasPrefix(channel, "game-") {
		return "", game.ErrAuthorizationDenied
	}

	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%s", socketID, channel)
	signature := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s:%s", a.key, signature), nil
}
