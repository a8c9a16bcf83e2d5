package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "shared")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "shared", cfg.JWT.TeacherSecret)
	assert.Equal(t, "shared", cfg.JWT.StudentSecret)
	assert.Equal(t, BackendPostgres, cfg.Coordinator.StoreBackend)
	assert.Equal(t, BackendMemory, cfg.Coordinator.BlockStore)
	assert.Equal(t, "@every 5m", cfg.Coordinator.SweeperSchedule)
	assert.Equal(t, int64(3600), cfg.Zego.TokenTTLSec)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_TEACHER_SECRET", "t")
	t.Setenv("JWT_STUDENT_SECRET", "s")
	t.Setenv("LECTURE_STORE", "MEMORY")
	t.Setenv("BLOCK_STORE", "redis")
	t.Setenv("ZEGO_APP_ID", "12345")
	t.Setenv("MIDTRANS_PRODUCTION", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.JWT.TeacherSecret)
	assert.Equal(t, BackendMemory, cfg.Coordinator.StoreBackend)
	assert.Equal(t, BackendRedis, cfg.Coordinator.BlockStore)
	assert.Equal(t, uint32(12345), cfg.Zego.AppID)
	assert.True(t, cfg.Midtrans.Production)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:         JWTConfig{TeacherSecret: "t", StudentSecret: "s"},
			Redis:       RedisConfig{Addr: "localhost:6379"},
			Coordinator: CoordinatorConfig{StoreBackend: BackendMemory, BlockStore: BackendMemory},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWT.StudentSecret = "" }},
		{"unknown store", func(c *Config) { c.Coordinator.StoreBackend = "sqlite" }},
		{"unknown block store", func(c *Config) { c.Coordinator.BlockStore = "etcd" }},
		{"redis blocks without redis", func(c *Config) {
			c.Coordinator.BlockStore = BackendRedis
			c.Redis.Addr = ""
		}},
		{"short zego secret", func(c *Config) { c.Zego.ServerSecret = "short" }},
		{"seed file with postgres", func(c *Config) {
			c.Coordinator.StoreBackend = BackendPostgres
			c.Coordinator.SeedFile = "lectures.json"
		}},
	}
	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "lms", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/lms?sslmode=disable", d.DSN())
	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
