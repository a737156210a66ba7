// Package relay issues join tokens for the external media relay that carries
// call audio and video once signaling completes.
package relay

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Participant tags identify each side of a call inside a relay channel.
const (
	TagInitiator uint32 = 1
	TagTarget    uint32 = 2
)

// Claims are the fields the relay checks on join.
type Claims struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
	jwt.RegisteredClaims
}

// Issuer signs time-limited channel join tokens with the app certificate.
type Issuer struct {
	appID string
	cert  []byte
	ttl   time.Duration
	now   func() time.Time
}

func NewIssuer(appID, cert string, ttl time.Duration) *Issuer {
	return &Issuer{appID: appID, cert: []byte(cert), ttl: ttl, now: time.Now}
}

// Issue returns a token admitting participant tag to channelID.
func (i *Issuer) Issue(channelID string, tag uint32) (string, error) {
	if channelID == "" {
		return "", errors.New("relay: channel id required")
	}
	now := i.now()
	claims := Claims{
		AppID:   i.appID,
		Channel: channelID,
		UID:     tag,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cert)
	if err != nil {
		return "", fmt.Errorf("relay: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token minted by Issue. The relay does this on its side; the
// admin CLI uses it to inspect tokens.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return i.cert, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.appID),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	return claims, nil
}
