package models

import "strings"

// ClientIdentity is the key naming a request originator for quota purposes:
// "ip:<addr>" or "device:<token>".
type ClientIdentity string

// UnknownIdentity is the shared bucket for requests with no usable address.
const UnknownIdentity ClientIdentity = "ip:unknown"

// NewIPIdentity builds an address-derived identity.
func NewIPIdentity(addr string) ClientIdentity {
	if addr == "" {
		return UnknownIdentity
	}
	return ClientIdentity(string(StrategyIP) + ":" + addr)
}

// NewDeviceIdentity builds a token-derived identity.
func NewDeviceIdentity(token string) ClientIdentity {
	return ClientIdentity(string(StrategyDevice) + ":" + token)
}

// Kind returns the identity strategy the identity was derived with.
func (c ClientIdentity) Kind() IdentityStrategy {
	kind, _, _ := strings.Cut(string(c), ":")
	return IdentityStrategy(kind)
}

// Value returns the identity without its kind prefix.
func (c ClientIdentity) Value() string {
	_, value, _ := strings.Cut(string(c), ":")
	return value
}

func (c ClientIdentity) String() string {
	return string(c)
}
