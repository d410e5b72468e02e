package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		_ = NewWithWriter(Config{Level: tc.level}, &bytes.Buffer{})
		assert.Equal(t, tc.want, zerolog.GlobalLevel(), "level %q", tc.level)
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestJSONOutputCarriesServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "info"}, &buf)

	l.Info().Str("path", "/sale").Msg("request")

	assert.Contains(t, buf.String(), `"service":"caixa"`)
	assert.Contains(t, buf.String(), `"path":"/sale"`)
	assert.Contains(t, buf.String(), `"message":"request"`)
}
