// Package transport defines the platform vocabulary and the outbound
// messaging port shared by the Telegram and business gateway adapters.
package transport

import "context"

// Platform identifies one of the supported chat transports.
type Platform string

const (
	// PlatformTelegram is the Telegram bot transport.
	PlatformTelegram Platform = "telegram"
	// PlatformGateway is the business messaging gateway transport.
	PlatformGateway Platform = "gateway"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformTelegram || p == PlatformGateway
}

// Sender delivers outbound messages to a chat user. Implementations
// own formatting conversion and retry policy.
type Sender interface {
	SendText(ctx context.Context, target string, text string, keyboard [][]string) error
	SendMedia(ctx context.Context, target string, mediaRef string, caption string) error
}
