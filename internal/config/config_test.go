package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ReplicaSafeLocks(t *testing.T) {
	tests := []struct {
		name    string
		storage string
		lock    string
		want    bool
	}{
		{"postgres with redis locks", "postgres", "redis", true},
		{"postgres with local locks", "postgres", "local", false},
		{"memory is single process", "memory", "local", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{StorageDriver: tt.storage, LockDriver: tt.lock}
			assert.Equal(t, tt.want, cfg.ReplicaSafeLocks())
		})
	}
}

func TestLoadConfig_DefaultsToRedisLocks(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("LOCK_DRIVER", "")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "redis", cfg.LockDriver)
	assert.True(t, cfg.ReplicaSafeLocks())
}
