package notify

import (
	"context"
	"encoding/json"
	"fmt"

	pubnubgo "github.com/pubnub/go/v7"

	"voicematch/internal/config"
)

// Publisher pushes a payload to one user's channel. Fire-and-forget: no
// delivery acknowledgement is required of this subsystem.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload any) error
	GrantToken(ctx context.Context) (string, error)
}

var _ Publisher = (*pubnub)(nil)

type pubnub struct {
	pn         *pubnubgo.PubNub
	uuidSubKey string
}

func NewPubnub(cfg config.PubNubConfig) (Publisher, error) {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		return nil, fmt.Errorf("pubnub publish and subscribe keys are required")
	}

	pnCfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(cfg.UUIDKey))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	return &pubnub{
		pn:         pubnubgo.NewPubNub(pnCfg),
		uuidSubKey: cfg.UUIDSubKey,
	}, nil
}

// UserChannel is the per-user push channel name. Presence events from these
// channels feed the connectivity signals.
func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func (p *pubnub) Publish(ctx context.Context, userID string, payload any) error {
	messageJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	publish := p.pn.PublishWithContext(ctx)
	publish.Channel(UserChannel(userID)).Message(string(messageJSON))
	if _, _, err := publish.Execute(); err != nil {
		return fmt.Errorf("publish to user %s: %w", userID, err)
	}
	return nil
}

func (p *pubnub) GrantToken(ctx context.Context) (string, error) {
	grantToken := p.pn.GrantTokenWithContext(ctx)
	permissions := map[string]pubnubgo.ChannelPermissions{
		"^user-[A-Za-z0-9-]*$": {
			Read: true,
		},
	}

	token, _, err := grantToken.TTL(60).AuthorizedUUID(p.uuidSubKey).ChannelsPattern(permissions).Execute()
	if err != nil {
		return "", fmt.Errorf("grant token: %w", err)
	}
	return token.Data.Token, nil
}
