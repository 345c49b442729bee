package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Reconnect ReconnectConfig
	Chat      ChatConfig
	Probe     ProbeConfig
	Cache     CacheConfig
	Log       LogConfig
}

type ServerConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

type ReconnectConfig struct {
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	NetworkCooldown time.Duration `mapstructure:"network_cooldown"`
}

type ChatConfig struct {
	PageSize         int           `mapstructure:"page_size"`
	RoomResolveDelay time.Duration `mapstructure:"room_resolve_delay"`
}

type ProbeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, rely on defaults and env vars.
	}

	// Set defaults
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.websocket_url", "ws://localhost:8080/ws/chat")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("reconnect.retry_delay", "5s")
	v.SetDefault("reconnect.network_cooldown", "10s")
	v.SetDefault("chat.page_size", 30)
	v.SetDefault("chat.room_resolve_delay", "300ms")
	v.SetDefault("probe.interval", "5s")
	v.SetDefault("probe.timeout", "2s")
	v.SetDefault("cache.path", "chat-history.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.base_url", "CHAT_BASE_URL")
	v.BindEnv("server.websocket_url", "CHAT_WEBSOCKET_URL")
	v.BindEnv("cache.path", "CHAT_CACHE_PATH")
	v.BindEnv("log.level", "CHAT_LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.HandshakeTimeout = parseDuration(v, "websocket.handshake_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Reconnect.RetryDelay = parseDuration(v, "reconnect.retry_delay", 5*time.Second)
	cfg.Reconnect.NetworkCooldown = parseDuration(v, "reconnect.network_cooldown", 10*time.Second)
	cfg.Chat.RoomResolveDelay = parseDuration(v, "chat.room_resolve_delay", 300*time.Millisecond)
	cfg.Probe.Interval = parseDuration(v, "probe.interval", 5*time.Second)
	cfg.Probe.Timeout = parseDuration(v, "probe.timeout", 2*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
