package scorerauth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nats-io/jwt/v2"
	"github.com/nats-io/nkeys"
)

type JWTIssuer struct {
	signingKey   nkeys.KeyPair
	accountPubID string
}

func NewJWTIssuer(signingKeySeed, accountPubKey string) (*JWTIssuer, error) {
	kp, err := nkeys.FromSeed([]byte(signingKeySeed))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS signing key seed: %w", err)
	}

	if accountPubKey == "" {
		return nil, fmt.Errorf("missing NATS scorers account public key")
	}

	return &JWTIssuer{
		signingKey:   kp,
		accountPubID: accountPubKey,
	}, nil
}

func GenerateUserKeyPair() (seed string, publicKey string, err error) {
	kp, err := nkeys.CreateUser()
	if err != nil {
		return "", "", err
	}

	seedBytes, err := kp.Seed()
	if err != nil {
		return "", "", err
	}

	publicKey, err = kp.PublicKey()
	if err != nil {
		return "", "", err
	}

	return string(seedBytes), publicKey, nil
}

// IssueScorerJWT mints a NATS user JWT scoped to a single organisation.
// The scorer may publish prediction batches and serve the org's on-demand
// score requests, nothing else.
func (ji *JWTIssuer) IssueScorerJWT(org, publicKey string, expiresIn time.Duration) (string, time.Time, error) {
	if !nkeys.IsValidPublicUserKey(publicKey) {
		return "", time.Time{}, fmt.Errorf("invalid scorer public key")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)

	claims := jwt.NewUserClaims(publicKey)
	claims.IssuedAt = now.Unix()
	claims.Expires = expiresAt.Unix()
	claims.IssuerAccount = ji.accountPubID

	// Publish prediction batches for its own organisation only
	claims.Permissions.Pub.Allow.Add(PublishSubject(org))
	// Serve on-demand scoring requests for the same organisation
	claims.Permissions.Sub.Allow.Add(ScoreSubject(org))
	// Reply inboxes for request-reply
	claims.Permissions.Pub.Allow.Add("_INBOX.>")
	claims.Permissions.Sub.Allow.Add("_INBOX.>")

	encoded, err := claims.Encode(ji.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode jwt: %w", err)
	}

	return encoded, expiresAt, nil
}

func PublishSubject(org string) string {
	return "fraud." + org + ".predictions"
}

func ScoreSubject(org string) string {
	return "fraud." + org + ".score"
}

// BuildCredsFile formats JWT and NKey seed into NATS .creds file format.
func BuildCredsFile(jwtToken, nkeySeed string) string {
	return `-----BEGIN NATS USER JWT-----
` + jwtToken + `
-----END NATS USER JWT-----

-----BEGIN USER NKEY SEED-----
` + nkeySeed + `
-----END USER NKEY SEED-----
`
}

// VerifyNKeySignature verifies a scorer-signed payload (nonce + timestamp)
// against its NKey public key.
func VerifyNKeySignature(publicKey, nonce string, timestamp int64, signature string) bool {
	if publicKey == "" || nonce == "" || signature == "" || timestamp == 0 {
		return false
	}

	signedData := fmt.Sprintf("%s:%d", nonce, timestamp)

	pubKey, err := nkeys.FromPublicKey(publicKey)
	if err != nil {
		return false
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	return pubKey.Verify([]byte(signedData), sigBytes) == nil
}
