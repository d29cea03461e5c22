package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/pkg/utils"
)

const guardKeyPrefix = "enricher:guard:"

// releaseScript deletes the flag only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// GuardRepoImpl provides a ProcessingGuard shared by every enricher attached
// to the same page, using Redis SET NX with a TTL. Each acquisition stores its
// own token, so a release only ever clears the flag it set.
type GuardRepoImpl struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration

	mu     sync.Mutex
	tokens map[entity.RegionKind]string
}

// NewGuardRepo creates a guard whose flags are scoped to namespace, typically
// the page URL. The TTL bounds how long a crashed holder can block a region.
func NewGuardRepo(client *redis.Client, namespace string, ttl time.Duration) *GuardRepoImpl {
	return &GuardRepoImpl{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		tokens:    make(map[entity.RegionKind]string),
	}
}

// generateKey creates a consistent Redis key for a region kind by hashing the namespace.
func (r *GuardRepoImpl) generateKey(kind entity.RegionKind) string {
	return fmt.Sprintf("%s%s:%s", guardKeyPrefix, utils.HashKey(r.namespace), kind)
}

// TryAcquire sets the flag if nobody holds it. A kind this guard still holds
// is refused even after its key expired.
func (r *GuardRepoImpl) TryAcquire(ctx context.Context, kind entity.RegionKind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.tokens[kind]; held {
		return false, nil
	}

	token := uuid.NewString()
	// SET NX is atomic: exactly one contender wins.
	ok, err := r.client.SetNX(ctx, r.generateKey(kind), token, r.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	r.tokens[kind] = token
	return true, nil
}

// Release clears the flag if the acquisition made by this guard still owns it.
func (r *GuardRepoImpl) Release(ctx context.Context, kind entity.RegionKind) error {
	r.mu.Lock()
	token, held := r.tokens[kind]
	delete(r.tokens, kind)
	r.mu.Unlock()
	if !held {
		return nil
	}
	return releaseScript.Run(ctx, r.client, []string{r.generateKey(kind)}, token).Err()
}

// Ping reports whether Redis is reachable.
func (r *GuardRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
