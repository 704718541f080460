package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsynqRedisOptParsesURL(t *testing.T) {
	cfg := &Config{RedisURL: "redis://:secret@redis.example:6380/2"}

	opt, err := AsynqRedisOpt(cfg)
	require.NoError(t, err)
	assert.Equal(t, "redis.example:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
}

func TestAsynqRedisOptPlainAddr(t *testing.T) {
	cfg := &Config{RedisURL: "localhost:6379", RedisPassword: "pw", RedisDB: 1}

	opt, err := AsynqRedisOpt(cfg)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 1, opt.DB)
}

func TestAsynqRedisOptInvalidURL(t *testing.T) {
	cfg := &Config{RedisURL: "redis://bad url with spaces"}

	_, err := AsynqRedisOpt(cfg)
	assert.Error(t, err)
}
