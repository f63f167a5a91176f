package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBcryptCost(t *testing.T) {
	cases := map[int]int{
		0:  MinBcryptCost,
		4:  MinBcryptCost,
		9:  MinBcryptCost,
		10: 10,
		12: 12,
		31: 31,
		40: MaxBcryptCost,
		-3: MinBcryptCost,
	}
	for in, want := range cases {
		assert.Equal(t, want, ClampBcryptCost(in), "ClampBcryptCost(%d)", in)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultBcryptCost, cfg.EffectiveBcryptCost())
	assert.Equal(t, UserStoreRedis, cfg.UserStore)
	assert.Equal(t, 12*time.Hour, cfg.SessionMaxAge())
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins())
}

func TestLoadFloorsMisconfiguredCost(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("BCRYPT_COST", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.BcryptCost)
	assert.Equal(t, MinBcryptCost, cfg.EffectiveBcryptCost())
}

func TestLoadExplicitZeroCost(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("BCRYPT_COST", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.BcryptCost)
	assert.Equal(t, MinBcryptCost, cfg.EffectiveBcryptCost())
}

func TestLoadRejectsGarbageCost(t *testing.T) {
	t.Setenv("BCRYPT_COST", "twelve")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("release requires secret", func(t *testing.T) {
		cfg := &Config{GinMode: "release", UserStore: UserStoreMemory}
		assert.Error(t, cfg.Validate())

		cfg.SessionSecret = "s3cret"
		cfg.RedisURL = "redis://localhost:6379/0"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown user store", func(t *testing.T) {
		cfg := &Config{UserStore: "postgres"}
		assert.Error(t, cfg.Validate())
	})
}

func TestAllowedOriginsTrimsBlanks(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}
