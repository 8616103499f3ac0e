package config

import (
	"fmt"
	"os"
	"strings"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config Miraii 后端配置（SOS 服务和 Companion 服务共用）
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string
	}

	// SOS 服务特定配置
	SOS struct {
		// 戒指传感器数据主题，格式: ring/{serial}/sensor
		SensorTopic string
		// 标注后传感器事件发布的 Redis Stream
		EventStream string
		// 同一设备重复报警抑制窗口（秒）
		DedupWindow int

		Cache struct {
			VitalsKeyPrefix string // 实时体征缓存键前缀，如 "miraii:ring:"
			VitalsSuffix    string // 实时体征缓存键后缀，如 ":vitals"
			VitalsTTL       int    // 体征缓存 TTL（秒）
			StateKeyPrefix  string // 检测状态缓存键前缀，如 "sos:state:"
		}

		// 紧急联系人（邮箱列表，逗号分隔）
		Contacts []string
	}

	// Companion 服务特定配置
	Companion struct {
		ModelBaseURL string // 模型托管平台地址
		ModelAPIKey  string // 模型托管平台访问令牌
		ModelName    string // 对话模型名称

		ElevenAPIKey  string // ElevenLabs API Key（可选，未配置时语音合成不可用）
		ElevenVoiceID string // ElevenLabs Voice ID

		Memory struct {
			KeyPrefix   string // 会话历史缓存键前缀，如 "elai:conv:"
			MaxMessages int    // 每个会话保留的最大消息数
			TTL         int    // 会话历史 TTL（秒）
		}

		RequestTimeout int // 外部模型/TTS 调用超时（秒）
	}

	// 通知配置（邮件告警）
	Notify struct {
		EmailBaseURL string // 邮件服务商 API 地址
		EmailAPIKey  string
		FromAddress  string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "miraii")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "miraii-sos")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// SOS 服务配置
	cfg.SOS.SensorTopic = getEnv("SOS_SENSOR_TOPIC", "ring/+/sensor")
	cfg.SOS.EventStream = getEnv("SOS_EVENT_STREAM", "sos:events:stream")
	cfg.SOS.DedupWindow = getEnvInt("SOS_DEDUP_WINDOW", 300) // 5分钟
	cfg.SOS.Cache.VitalsKeyPrefix = getEnv("CACHE_VITALS_PREFIX", "miraii:ring:")
	cfg.SOS.Cache.VitalsSuffix = ":vitals"
	cfg.SOS.Cache.VitalsTTL = 60
	cfg.SOS.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "sos:state:")
	if contacts := getEnv("SOS_CONTACTS", ""); contacts != "" {
		for _, c := range strings.Split(contacts, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.SOS.Contacts = append(cfg.SOS.Contacts, c)
			}
		}
	}

	// Companion 服务配置
	cfg.Companion.ModelBaseURL = getEnv("MODEL_BASE_URL", "https://api.openai.com/v1")
	cfg.Companion.ModelAPIKey = getEnv("MODEL_API_KEY", "")
	cfg.Companion.ModelName = getEnv("MODEL_NAME", "gpt-4o")
	cfg.Companion.ElevenAPIKey = getEnv("ELEVEN_API_KEY", "")
	cfg.Companion.ElevenVoiceID = getEnv("ELEVEN_VOICE_ID", "21m00Tcm4TlvDq8ikWAM")
	cfg.Companion.Memory.KeyPrefix = getEnv("CACHE_CONV_PREFIX", "elai:conv:")
	cfg.Companion.Memory.MaxMessages = 20
	cfg.Companion.Memory.TTL = 86400 // 24小时
	cfg.Companion.RequestTimeout = getEnvInt("COMPANION_TIMEOUT", 30)

	// 通知配置
	cfg.Notify.EmailBaseURL = getEnv("EMAIL_BASE_URL", "https://api.resend.com")
	cfg.Notify.EmailAPIKey = getEnv("EMAIL_API_KEY", "")
	cfg.Notify.FromAddress = getEnv("EMAIL_FROM", "alerts@miraii.app")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
