package media

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

func Test_Mint_Produces_Verifiable_Credentials(t *testing.T) {
	req := require.New(t)
	service := NewCredentialService("app-1", "super-secret-cert", time.Hour)

	creds, err := service.Mint("g1", "alice")
	req.NoError(err)
	req.Equal("app-1", creds.AppID)
	req.Equal("g1", creds.Channel)
	req.Equal("alice", creds.UID)
	req.NotEmpty(creds.Token)
	req.True(creds.ExpiresAt.After(time.Now()))

	// The token parses back with the same certificate
	parsed, err := jwt.ParseWithClaims(creds.Token, &channelClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte("super-secret-cert"), nil
	})
	req.NoError(err)
	claims := parsed.Claims.(*channelClaims)
	req.Equal("g1", claims.Channel)
	req.Equal("alice", claims.UID)
}

func Test_Mint_Without_App_Config_Is_A_Configuration_Error(t *testing.T) {
	req := require.New(t)

	_, err := NewCredentialService("", "cert", time.Hour).Mint("g1", "alice")
	req.ErrorIs(err, apperrors.ErrCredentialsUnavailable)

	_, err = NewCredentialService("app-1", "", time.Hour).Mint("g1", "alice")
	req.ErrorIs(err, apperrors.ErrCredentialsUnavailable)
}
