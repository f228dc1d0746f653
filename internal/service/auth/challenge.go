package auth

import (
	"fmt"
	"strings"
	"time"
)

const (
	challengeHeader = " wants you to sign in with your Ethereum account:"
	challengeNonce  = "Nonce: "
	challengeIssued = "Issued At: "
	challengeExpiry = "Expiration Time: "
)

// challenge 登录挑战内容，格式参照EIP-4361
type challenge struct {
	domain    string
	address   string
	nonce     string
	issuedAt  time.Time
	expiresAt time.Time
}

func (c challenge) String() string {
	var b strings.Builder
	b.WriteString(c.domain + challengeHeader + "\n")
	b.WriteString(c.address + "\n\n")
	b.WriteString("Sign in to the governance backend.\n\n")
	b.WriteString(challengeNonce + c.nonce + "\n")
	b.WriteString(challengeIssued + c.issuedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString(challengeExpiry + c.expiresAt.UTC().Format(time.RFC3339))
	return b.String()
}

// parseChallenge 解析签名消息中的域名、地址、nonce和过期时间
func parseChallenge(message string) (challenge, error) {
	var c challenge
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(lines) < 2 || !strings.HasSuffix(lines[0], challengeHeader) {
		return c, fmt.Errorf("%w: missing sign-in header", ErrInvalidChallenge)
	}
	c.domain = strings.TrimSuffix(lines[0], challengeHeader)
	c.address = strings.TrimSpace(lines[1])

	for _, line := range lines[2:] {
		var err error
		switch {
		case strings.HasPrefix(line, challengeNonce):
			c.nonce = strings.TrimPrefix(line, challengeNonce)
		case strings.HasPrefix(line, challengeIssued):
			c.issuedAt, err = time.Parse(time.RFC3339, strings.TrimPrefix(line, challengeIssued))
		case strings.HasPrefix(line, challengeExpiry):
			c.expiresAt, err = time.Parse(time.RFC3339, strings.TrimPrefix(line, challengeExpiry))
		}
		if err != nil {
			return c, fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
		}
	}
	if c.domain == "" || c.nonce == "" || c.expiresAt.IsZero() {
		return c, fmt.Errorf("%w: domain, nonce and expiration time are required", ErrInvalidChallenge)
	}
	return c, nil
}
