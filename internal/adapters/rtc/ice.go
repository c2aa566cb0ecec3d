package rtc

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Space/internal/core"
)

var ErrNoTURN = errors.New("turn credentials not configured")

// DefaultSTUN is handed to every client, whatever the provider returns.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

func DefaultICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = DefaultSTUN
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// ValidateURLs checks every STUN/TURN URI.
func ValidateURLs(urls []string) error {
	for _, u := range urls {
		if _, err := stun.ParseURI(u); err != nil {
			return fmt.Errorf("ice url %q: %w", u, err)
		}
	}
	return nil
}

// TURNREST issues time-limited TURN credentials using the shared-secret
// scheme understood by coturn's use-auth-secret: the username is
// "<expiry>:<sid>" and the password is base64(HMAC-SHA1(secret, username)).
type TURNREST struct {
	URLs   []string
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

func (t *TURNREST) ICEServers(ctx context.Context, sid core.SessionID) ([]webrtc.ICEServer, error) {
	if t.Secret == "" || len(t.URLs) == 0 {
		return nil, ErrNoTURN
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	username := strconv.FormatInt(now().Add(ttl).Unix(), 10) + ":" + string(sid)
	return []webrtc.ICEServer{{
		URLs:           t.URLs,
		Username:       username,
		Credential:     Credential(t.Secret, username),
		CredentialType: webrtc.ICECredentialTypePassword,
	}}, nil
}

// Credential computes the TURN REST password for username.
func Credential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
