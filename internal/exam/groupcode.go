package exam

import (
	"context"
	"crypto/rand"
	"fmt"
)

// GroupCodeAlphabet is the 32-symbol set group codes are drawn from.
// Crockford base32: no I, L, O or U, so codes survive being read aloud
// or typed from a projector.
const GroupCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const groupCodeLength = 6

const maxCodeAttempts = 20

func randomGroupCode() (string, error) {
	buf := make([]byte, groupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = GroupCodeAlphabet[int(b)%len(GroupCodeAlphabet)]
	}
	return string(buf), nil
}

// generateGroupCode draws codes until one is free in both the cache and
// the store. Historical sessions count: a code is never reissued while
// any session row holds it.
func (c *Coordinator) generateGroupCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomGroupCode()
		if err != nil {
			return "", err
		}
		if c.cache.Contains(code) {
			continue
		}
		exists, err := c.store.GroupCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not find a free group code after %d attempts", maxCodeAttempts)
}
