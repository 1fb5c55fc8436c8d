// Package cache stores rendered images in Redis.
//
// The key carries only the identity id. Mutations invalidate their own
// identity's entry; global drift (age rings growing as the ledger height
// moves) is bounded by the TTL, which is a freshness backstop rather than
// the consistency mechanism.
package cache

import (
	"context"
	"log/slog"
	"time"

	platformredis "sigil/internal/platform/redis"
	id "sigil/pkg/domain"
)

// RenderCache is a Redis-backed image cache. A nil *RenderCache is a
// valid no-op cache, so callers need no nil checks.
type RenderCache struct {
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *RenderCache {
	if client == nil {
		return nil
	}
	return &RenderCache{client: client, ttl: ttl, logger: logger}
}

func key(identityID id.IdentityID) string {
	return "sigil:render:" + identityID.String()
}

// Get returns the cached image, if any. Cache errors degrade to a miss.
func (c *RenderCache) Get(ctx context.Context, identityID id.IdentityID) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key(identityID)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores the image under the identity's key.
func (c *RenderCache) Set(ctx context.Context, identityID id.IdentityID, image []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key(identityID), image, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "failed to cache render", "identity_id", identityID, "error", err)
	}
}

// Invalidate drops the identity's cached image. Called by the ledger
// after any mutation that can change the render.
func (c *RenderCache) Invalidate(ctx context.Context, identityID id.IdentityID) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key(identityID)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "failed to invalidate render cache", "identity_id", identityID, "error", err)
	}
}
