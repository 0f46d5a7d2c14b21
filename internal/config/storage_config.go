package config

import (
	"fmt"
	"strings"
)

// StorageBackend selects where the persisted session record lives.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageSQLite StorageBackend = "sqlite"
	StorageRedis  StorageBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StorageBackend.
func (b *StorageBackend) UnmarshalText(text []byte) error {
	v := StorageBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StorageMemory, StorageFile, StorageSQLite, StorageRedis:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid StorageBackend: %q (valid options: memory, file, sqlite, redis)", string(text))
	}
}

type Storage struct {
	Backend     StorageBackend `env:"STORAGE_BACKEND"      envDefault:"file"`
	File        string         `env:"STORAGE_FILE"         envDefault:"./data/session.json"`
	SQLitePath  string         `env:"STORAGE_SQLITE_PATH"  envDefault:"./data/session.db"`
	RedisAddr   string         `env:"STORAGE_REDIS_ADDR"   envDefault:"localhost:6379"`
	RedisPrefix string         `env:"STORAGE_REDIS_PREFIX" envDefault:"comptamaroc:"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() StorageBackend {
	return s.Backend
}

func (s Storage) GetStorageFile() string {
	return s.File
}

func (s Storage) GetSQLitePath() string {
	return s.SQLitePath
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPrefix() string {
	return s.RedisPrefix
}
