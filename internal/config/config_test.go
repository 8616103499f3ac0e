package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "miraii", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, "ring/+/sensor", cfg.SOS.SensorTopic)
	assert.Equal(t, "sos:events:stream", cfg.SOS.EventStream)
	assert.Equal(t, 300, cfg.SOS.DedupWindow)
	assert.Equal(t, "miraii:ring:", cfg.SOS.Cache.VitalsKeyPrefix)
	assert.Equal(t, ":vitals", cfg.SOS.Cache.VitalsSuffix)
	assert.Equal(t, "sos:state:", cfg.SOS.Cache.StateKeyPrefix)
	assert.Empty(t, cfg.SOS.Contacts)

	assert.Equal(t, "gpt-4o", cfg.Companion.ModelName)
	assert.Equal(t, "elai:conv:", cfg.Companion.Memory.KeyPrefix)
	assert.Equal(t, 20, cfg.Companion.Memory.MaxMessages)
	assert.Equal(t, 30, cfg.Companion.RequestTimeout)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("SOS_CONTACTS", "a@example.com, b@example.com")
	os.Setenv("MODEL_API_KEY", "test-key")
	os.Setenv("ELEVEN_API_KEY", "test-eleven")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SOS.Contacts)
	assert.Equal(t, "test-key", cfg.Companion.ModelAPIKey)
	assert.Equal(t, "test-eleven", cfg.Companion.ElevenAPIKey)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestGetDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db-host",
		Port:     5433,
		User:     "miraii",
		Password: "secret",
		Database: "miraii",
		SSLMode:  "require",
	}

	dsn := cfg.GetDSN()
	assert.Equal(t, "host=db-host port=5433 user=miraii password=secret dbname=miraii sslmode=require", dsn)
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	os.Unsetenv("TEST_KEY")
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Setenv("TEST_INT", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 42))

	// 非数字时使用默认值
	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Unsetenv("TEST_INT")
}
