package redis

import "strings"

const keyNamespace = "ts"

// Key families. Every key the services write lives under "ts:<family>:".
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familySession     = "session"
	familyLock        = "lock"
)

// IdempotencyKey namespaces a replay record for scope and id.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(familyIdempotency, scope, id)
}

// RateLimitKey namespaces a throttling counter.
func (c *Client) RateLimitKey(parts ...string) string {
	return joinKey(append([]string{familyRateLimit}, parts...)...)
}

// AccessSessionKey names the presence record for an access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return joinKey(familySession, "access", accessID)
}

// LockKey names a distributed lock.
func (c *Client) LockKey(parts ...string) string {
	return joinKey(append([]string{familyLock}, parts...)...)
}

// joinKey drops blank parts so optional segments never leave "::" behind.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
