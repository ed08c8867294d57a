package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var Conf = new(AppConfig)

type AppConfig struct {
	Port      int    `mapstructure:"port"`
	Name      string `mapstructure:"name"`
	Mode      string `mapstructure:"mode"`
	Version   string `mapstructure:"version"`
	MachineID int64  `mapstructure:"machine_id"`

	*LogConfig       `mapstructure:"log"`
	*MySQLConfig     `mapstructure:"mysql"`
	*RedisConfig     `mapstructure:"redis"`
	*JWTConfig       `mapstructure:"jwt"`
	*GatewayConfig   `mapstructure:"gateway"`
	*RateLimitConfig `mapstructure:"rate_limit"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret         string `mapstructure:"secret"`
	ExpireDuration int    `mapstructure:"expire_duration"`
}

// GatewayConfig tunes the websocket connection lifecycle.
type GatewayConfig struct {
	// FallbackPorts are tried in order when the preferred port is bound.
	FallbackPorts []int `mapstructure:"fallback_ports"`
	// HeartbeatTimeoutSeconds: a connection is stale once its last heartbeat
	// is strictly older than this.
	HeartbeatTimeoutSeconds int `mapstructure:"heartbeat_timeout_seconds"`
	SweepIntervalSeconds    int `mapstructure:"sweep_interval_seconds"`
	// SendChannelSize is the per-connection outbound queue length.
	SendChannelSize int `mapstructure:"send_channel_size"`
	// MaxMessageLength caps chat message content in characters.
	MaxMessageLength int `mapstructure:"max_message_length"`
	// TypingStopSeconds: idle delay before a synthetic typing_stop broadcast.
	TypingStopSeconds int `mapstructure:"typing_stop_seconds"`
}

type RateLimitConfig struct {
	MaxMessages   int `mapstructure:"max_messages"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func Init() (err error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	err = viper.ReadInConfig()
	if err != nil {
		fmt.Printf("viper.ReadInConfig() failed, err:%v\n", err)
		return
	}
	if err = viper.Unmarshal(Conf); err != nil {
		fmt.Printf("viper.Unmarshal failed, err:%v\n", err)
	}
	viper.WatchConfig()
	viper.OnConfigChange(func(in fsnotify.Event) {
		fmt.Println("config file changed, reloading...")
		if err = viper.Unmarshal(Conf); err != nil {
			fmt.Printf("viper.Unmarshal failed, err:%v\n", err)
		}
	})
	return
}

// InitFromFile loads config from an explicit path instead of the working dir.
func InitFromFile(path string) error {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := viper.Unmarshal(Conf); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	viper.WatchConfig()
	viper.OnConfigChange(func(in fsnotify.Event) {
		fmt.Println("config file changed, reloading...")
		if err := viper.Unmarshal(Conf); err != nil {
			fmt.Printf("viper.Unmarshal failed, err:%v\n", err)
		}
	})
	return nil
}
