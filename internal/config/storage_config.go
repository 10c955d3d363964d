package config

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetBoltPath() string
	GetRedisURL() string
	GetKeyPrefix() string
	GetSealKey() string
}

type Storage struct {
	Backend   string `env:"STORAGE_BACKEND" envDefault:"bolt"`
	BoltPath  string `env:"STORAGE_BOLT_PATH" envDefault:"./data/session.db"`
	RedisURL  string `env:"STORAGE_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix string `env:"STORAGE_KEY_PREFIX"`
	SealKey   string `env:"STORAGE_SEAL_KEY"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() string {
	return s.Backend
}

func (s Storage) GetBoltPath() string {
	return s.BoltPath
}

func (s Storage) GetRedisURL() string {
	return s.RedisURL
}

// GetKeyPrefix namespaces the session: the Redis key prefix, or the BoltDB
// bucket name. Empty means the store's default.
func (s Storage) GetKeyPrefix() string {
	return s.KeyPrefix
}

// GetSealKey is a base64 secretbox key. When set, values are encrypted at rest.
func (s Storage) GetSealKey() string {
	return s.SealKey
}
