package bootstrap

import (
	"fmt"

	"AuroraGate/pkg/config"
	"AuroraGate/pkg/db/mysql"
	rdb "AuroraGate/pkg/db/redis"
	"AuroraGate/pkg/logger"
	"AuroraGate/pkg/utils"
)

// InitAll initializes config/logger/mysql/redis and returns a cleanup func.
// configPath is a YAML config file path; if empty, falls back to config.Init().
func InitAll(configPath string) (cleanup func(), err error) {
	if configPath != "" {
		if err = config.InitFromFile(configPath); err != nil {
			return nil, err
		}
	} else {
		if err = config.Init(); err != nil {
			return nil, err
		}
	}

	if err = logger.Init(config.Conf.LogConfig); err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	if err = mysql.Init(config.Conf.MySQLConfig); err != nil {
		return nil, fmt.Errorf("init mysql failed: %w", err)
	}

	if err = rdb.Init(config.Conf.RedisConfig); err != nil {
		mysql.Close()
		return nil, fmt.Errorf("init redis failed: %w", err)
	}

	utils.SetJWTConfig(config.Conf.JWTConfig)

	cleanup = func() {
		mysql.Close()
		rdb.Close()
		_ = logger.L().Sync()
	}
	return cleanup, nil
}
