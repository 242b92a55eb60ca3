package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "WARN", want: zapcore.WarnLevel},
		{in: " error ", want: zapcore.ErrorLevel},
		{in: "chatty", wantErr: true},
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

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New("crosswatch", "loud")
	assert.Error(t, err)
}

func TestNewObserved_CapturesNamedEntries(t *testing.T) {
	logger, logs := NewObserved()
	logger.Named("tracker").Infow("track registered", "id", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tracker", entries[0].LoggerName)
	assert.Equal(t, "track registered", entries[0].Message)
	assert.Equal(t, int64(3), entries[0].ContextMap()["id"])
}

func TestStdLog_WritesInfo(t *testing.T) {
	logger, logs := NewObserved()
	StdLog(logger).Print("from std")

	entries := logs.FilterMessage("from std").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}
