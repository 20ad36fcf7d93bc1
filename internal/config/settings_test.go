package config

import (
	"testing"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	v := viper.New()
	SetDefaults(v)

	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", s.LLM.Provider)
	assert.Equal(t, "sk-test", s.LLM.APIKey)
	assert.Equal(t, 100, s.LLM.DailyLimit)
	assert.Equal(t, 30*time.Second, s.LLM.Timeout)
	assert.Equal(t, 5*time.Minute, s.Cache.RulesTTL)
	assert.Equal(t, 10*time.Minute, s.Cache.CategoriesTTL)
	assert.Equal(t, 2, s.Learning.MinCorrections)
	assert.NotContains(t, s.Database.Path, "$HOME")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "unknown provider", key: "llm.provider", val: "mystery"},
		{name: "negative daily limit", key: "llm.daily_limit", val: -1},
		{name: "zero timeout", key: "llm.timeout", val: 0},
		{name: "zero learning threshold", key: "learning.min_corrections", val: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)

			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("FIRETRACK_TEST_DIR", "/tmp/firetrack")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/tmp/firetrack/db.sqlite", ExpandPath("$FIRETRACK_TEST_DIR/db.sqlite"))
	assert.NotContains(t, ExpandPath("~/data.db"), "~")
}
