// Package media issues short-lived channel tokens for the external real-time media SDK.
package media

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no app id or server secret is set.
var ErrNotConfigured = errors.New("media: ZEGO_APP_ID and ZEGO_SERVER_SECRET required")

// RtcRoomPayload is the payload for room-based token (live streaming). See ZEGOCLOUD token04 docs.
type RtcRoomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// ZegoIssuer issues ZEGOCLOUD token04 tokens scoped to a lecture channel and an identity.
type ZegoIssuer struct {
	appID        uint32
	serverSecret string
	ttlSec       int64
}

// NewZegoIssuer creates a token issuer. serverSecret must be 32 characters when set.
func NewZegoIssuer(appID uint32, serverSecret string, ttlSec int64) (*ZegoIssuer, error) {
	if serverSecret != "" && len(serverSecret) != 32 {
		return nil, fmt.Errorf("media: server_secret must be 32 characters")
	}
	if ttlSec <= 0 {
		ttlSec = 3600
	}
	return &ZegoIssuer{appID: appID, serverSecret: serverSecret, ttlSec: ttlSec}, nil
}

// Configured reports whether tokens can be issued.
func (z *ZegoIssuer) Configured() bool {
	return z.appID != 0 && z.serverSecret != ""
}

// PublisherToken lets userID log in to channel and publish streams.
func (z *ZegoIssuer) PublisherToken(channel string, userID uuid.UUID) (string, error) {
	return z.generate(channel, userID, true)
}

// SubscriberToken lets userID log in to channel and play streams only.
func (z *ZegoIssuer) SubscriberToken(channel string, userID uuid.UUID) (string, error) {
	return z.generate(channel, userID, false)
}

func (z *ZegoIssuer) generate(channel string, userID uuid.UUID, publish bool) (string, error) {
	if !z.Configured() {
		return "", ErrNotConfigured
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if publish {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	payloadJSON, err := json.Marshal(RtcRoomPayload{RoomID: channel, Privilege: privilege})
	if err != nil {
		return "", fmt.Errorf("media: marshal payload: %w", err)
	}
	return token04.GenerateToken04(z.appID, userID.String(), z.serverSecret, z.ttlSec, string(payloadJSON))
}
