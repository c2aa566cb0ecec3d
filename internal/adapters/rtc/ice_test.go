package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential(t *testing.T) {
	// echo -n "1700000000:alice" | openssl dgst -sha1 -hmac "secret" -binary | base64
	assert.Equal(t, "d8soP47RbdIKLDUOpnJPVQyq5Ts=", Credential("secret", "1700000000:alice"))
	assert.NotEqual(t, Credential("secret", "a"), Credential("other", "a"))
}

func TestTURNREST_ICEServers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := &TURNREST{
		URLs:   []string{"turn:turn.example.org:3478?transport=udp"},
		Secret: "secret",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	}

	servers, err := p.ICEServers(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	s := servers[0]
	assert.Equal(t, "1700003600:conn-1", s.Username)
	assert.Equal(t, Credential("secret", s.Username), s.Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, s.CredentialType)
	assert.Equal(t, p.URLs, s.URLs)
}

func TestTURNREST_Errors(t *testing.T) {
	_, err := (&TURNREST{URLs: []string{"turn:x"}}).ICEServers(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNoTURN)

	_, err = (&TURNREST{Secret: "s"}).ICEServers(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNoTURN)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&TURNREST{URLs: []string{"turn:x"}, Secret: "s"}).ICEServers(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultICEServers(t *testing.T) {
	assert.Equal(t, []webrtc.ICEServer{{URLs: DefaultSTUN}}, DefaultICEServers(nil))
	custom := []string{"stun:stun.example.org:3478"}
	assert.Equal(t, []webrtc.ICEServer{{URLs: custom}}, DefaultICEServers(custom))
}

func TestValidateURLs(t *testing.T) {
	assert.NoError(t, ValidateURLs(DefaultSTUN))
	assert.NoError(t, ValidateURLs([]string{"turn:turn.example.org:3478?transport=tcp"}))
	assert.Error(t, ValidateURLs([]string{"http://example.org"}))
}
