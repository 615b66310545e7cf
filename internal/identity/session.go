package identity

import (
	"context"

	"github.com/armorline/storefront/pkg/web"
)

// ContextSession reads the session identity that the HTTP edge placed
// into the request context. It is the primary identity source; the
// locally persisted record is the fallback.
type ContextSession struct{}

func (ContextSession) CurrentIdentity(ctx context.Context) (string, bool) {
	return web.UserIDFrom(ctx)
}
