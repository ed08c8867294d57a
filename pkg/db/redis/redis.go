package redis

import (
	"context"
	"fmt"

	"AuroraGate/pkg/config"

	legacy "github.com/go-redis/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Rdb is the legacy (v6) client. The offline push queue still runs on it;
// new context-aware code should use Cli.
var Rdb *legacy.Client

// Cli is the v9 client used by context-aware callers (caches, presence).
var Cli *goredis.Client

func Init(cfg *config.RedisConfig) (err error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	Rdb = legacy.NewClient(&legacy.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if _, err = Rdb.Ping().Result(); err != nil {
		return err
	}

	Cli = goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	_, err = Cli.Ping(context.Background()).Result()
	return err
}

func Close() {
	_ = Rdb.Close()
	_ = Cli.Close()
}
