package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	GRPCPort int    `env:"GRPC_PORT,default=9090"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	JWTIssuer      string `env:"JWT_ISSUER,default=skill-chat"`

	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT,default=10s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryBufferSize   int           `env:"DELIVERY_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=5s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	BacklogInterval      time.Duration `env:"BACKLOG_INTERVAL,default=30s"`

	StoreMaxRetries  int `env:"STORE_MAX_RETRIES,default=5"`
	MaxContentLength int `env:"MAX_CONTENT_LENGTH,default=1000"`
	DefaultPageSize  int `env:"DEFAULT_PAGE_SIZE,default=50"`
	MaxPageSize      int `env:"MAX_PAGE_SIZE,default=100"`

	NotificationPreviewLength int `env:"NOTIFICATION_PREVIEW_LENGTH,default=50"`
	NotificationMaxRetry      int `env:"NOTIFICATION_MAX_RETRY,default=3"`

	SocketRateLimit float64 `env:"SOCKET_RATE_LIMIT,default=20"`
	SocketRateBurst int     `env:"SOCKET_RATE_BURST,default=40"`

	// Optional: without it presence stays local and notifications are only logged.
	RedisURL          string        `env:"REDIS_URL"`
	PresenceTTL       time.Duration `env:"PRESENCE_TTL,default=60s"`
	PresenceHeartbeat time.Duration `env:"PRESENCE_HEARTBEAT,default=20s"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
	UUIDOrdering      bool   `env:"UUID_ORDERING,default=false"`
}

func (c Config) Validate() error {
	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must be at least DEFAULT_PAGE_SIZE (%d)", c.MaxPageSize, c.DefaultPageSize)
	}
	if c.RedisURL != "" && c.PresenceHeartbeat >= c.PresenceTTL {
		return fmt.Errorf("PRESENCE_HEARTBEAT (%s) must be shorter than PRESENCE_TTL (%s)", c.PresenceHeartbeat, c.PresenceTTL)
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
