package store

import "errors"

const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyClientID     = "clientID"
)

var ErrNotFound = errors.New("value not found")

// TokenStore is the client's persistent key-value storage. Values are
// opaque strings; the store performs no validation.
type TokenStore interface {
	Get(name string) (string, error)
	Set(name string, value string) error
	Remove(name string) error
}
