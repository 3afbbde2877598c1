package signalcache

import (
	"log"

	"visgw/internal/protocol"
	"visgw/internal/utils"
)

const (
	EnvRedisHost     = "REDIS_HOST"
	EnvRedisPort     = "REDIS_PORT"
	EnvRedisUser     = "REDIS_USERNAME"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// Store keeps the latest observed value per signal path. It backs the
// status endpoint; request matching never reads from it.
type Store interface {
	Update(samples []protocol.SignalSample)
	Latest() []protocol.SignalSample
	Close() error
}

// NewStore picks Redis when REDIS_HOST is set, falling back to the
// in-memory cache when the connection fails.
func NewStore() Store {
	redisHost := utils.GetEnv(EnvRedisHost, "")

	if redisHost != "" {
		redisPort := utils.GetEnv(EnvRedisPort, "6379")
		redisUser := utils.GetEnv(EnvRedisUser, "")
		redisPassword := utils.GetEnv(EnvRedisPassword, "")

		store, err := NewRedisStore(redisHost, redisPort, redisUser, redisPassword)
		if err != nil {
			log.Printf("⚠️  Redis connection failed: %v", err)
			log.Println("💾 Falling back to in-memory signal cache")
			return NewMemoryStore()
		}
		log.Printf("💾 Using Redis signal cache: %s:%s", redisHost, redisPort)
		return store
	}

	log.Println("💾 Using in-memory signal cache")
	return NewMemoryStore()
}
