package logging

import (
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"verbose", logger.INFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Init("info", "xml"))
}

func TestLevelFiltering(t *testing.T) {
	l := CreateLogger("test").(*zapLogger)
	l.SetLevel(logger.WARNING)
	assert.False(t, l.enabled(logger.INFO))
	assert.True(t, l.enabled(logger.ERROR))
	assert.True(t, l.enabled(logger.WARNING))
}
