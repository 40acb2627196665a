package callback

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/logging"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/session"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

var (
	ErrBadSignature   = errors.New("invalid callback signature")
	ErrMissingSession = errors.New("callback missing session id")
)

// UnityVerifier checks Unity Ads server-to-server callback signatures.
// The signature is an HMAC-MD5 hex digest over the query parameters
// sorted by key and joined as "k=v&k=v", excluding the sig parameter
// itself. An empty secret disables verification (dev environments).
type UnityVerifier struct {
	secret string
}

// NewUnityVerifier creates a verifier with the shared S2S secret
func NewUnityVerifier(secret string) *UnityVerifier {
	return &UnityVerifier{secret: secret}
}

// Verify checks the sig parameter against the recomputed digest.
func (v *UnityVerifier) Verify(params map[string]string) bool {
	if v.secret == "" {
		return true
	}

	received := params["sig"]
	if received == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}

	mac := hmac.New(md5.New, []byte(v.secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(received), []byte(expected))
}

// UnityCallback processes verified S2S completion callbacks. Unity
// echoes back the sid we attach when serving the ad, which carries our
// session id; the callback then rides the normal completion path with
// the verified flag set, so the duration check is bypassed and the
// ledger guarantees at most one credit even when Unity retries.
type UnityCallback struct {
	verifier *UnityVerifier
	sessions *session.Manager
	log      *logging.Logger
}

// NewUnityCallback creates the Unity S2S callback processor
func NewUnityCallback(verifier *UnityVerifier, sessions *session.Manager, log *logging.Logger) *UnityCallback {
	return &UnityCallback{verifier: verifier, sessions: sessions, log: log}
}

// Process verifies the callback and credits the referenced session.
func (c *UnityCallback) Process(ctx context.Context, params map[string]string) (*models.CompleteAdResponse, error) {
	if !c.verifier.Verify(params) {
		c.log.Warnf("Rejected Unity callback with bad signature (oid=%s)", params["oid"])
		return nil, ErrBadSignature
	}

	sessionID := params["sid"]
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	report := session.Report{Completed: true, Verified: true}
	result, err := c.sessions.Complete(ctx, sessionID, "", report)
	if err != nil {
		return nil, fmt.Errorf("failed to settle unity callback: %w", err)
	}

	c.log.WithSessionID(sessionID).Infof("Unity S2S callback settled: state=%s", result.State)
	return result, nil
}
