package media

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

// Credentials is one short-lived grant to join a group's media channel.
type Credentials struct {
	AppID     string    `json:"app_id"`
	Channel   string    `json:"channel"`
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// channelClaims is the signed content of a join token.
type channelClaims struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	jwt.RegisteredClaims
}

// CredentialService mints per-group join tokens, HS256-signed with the
// media app certificate.
type CredentialService struct {
	appID   string
	appCert []byte
	ttl     time.Duration
}

func NewCredentialService(appID, appCert string, ttl time.Duration) *CredentialService {
	return &CredentialService{appID: appID, appCert: []byte(appCert), ttl: ttl}
}

// Mint returns join credentials for (group, user).
// Missing app configuration is a configuration error, surfaced immediately
// and never retried. A token that does not verify round-trip is reported
// as incomplete credentials.
func (s *CredentialService) Mint(groupID domain.GroupID, userID string) (Credentials, error) {
	if s.appID == "" || len(s.appCert) == 0 {
		return Credentials{}, apperrors.ErrCredentialsUnavailable
	}

	expires := time.Now().Add(s.ttl)
	claims := &channelClaims{
		AppID:   s.appID,
		Channel: string(groupID),
		UID:     userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "supportai-circle",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.appCert)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign join token: %w", err)
	}

	creds := Credentials{
		AppID:     s.appID,
		Channel:   string(groupID),
		UID:       userID,
		Token:     token,
		ExpiresAt: expires,
	}
	if err := s.verify(creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// verify re-parses the minted token and checks the claims are complete.
func (s *CredentialService) verify(creds Credentials) error {
	parsed, err := jwt.ParseWithClaims(creds.Token, &channelClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.appCert, nil
	})
	if err != nil || !parsed.Valid {
		return apperrors.ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*channelClaims)
	if !ok || claims.AppID == "" || claims.Channel == "" || claims.UID == "" {
		return apperrors.ErrInvalidCredentials
	}
	return nil
}
