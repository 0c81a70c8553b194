package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	atomic := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atomic)

	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
		atomicLevel:   atomic,
	}, logs
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level       string
		development bool
		wantErr     bool
	}{
		{level: "debug", development: true},
		{level: "info"},
		{level: "warn"},
		{level: "error", development: true},
		{level: "verbose", wantErr: true},
		{level: "", development: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			want := tt.level
			if want == "" {
				want = "info"
			}
			require.Equal(t, want, l.GetLevel())
			require.Empty(t, l.GetComponent())
		})
	}
}

func TestLogger_WithComponent(t *testing.T) {
	root, logs := observed(zapcore.InfoLevel)

	sweeper := root.WithComponent("auto-reduce")
	require.Equal(t, "auto-reduce", sweeper.GetComponent())

	sweeper.Infof("claimed %d markers", 3)
	sweeper.Debug("hidden at info level")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "claimed 3 markers", entries[0].Message)
	require.Equal(t, "auto-reduce", entries[0].ContextMap()["component"])
}

func TestLogger_WithSameComponent(t *testing.T) {
	root, logs := observed(zapcore.InfoLevel)

	router := root.WithComponent("reducer")
	require.Same(t, router, router.WithComponent("reducer"))

	router.WithComponent("reducer").Info("folded")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Context, 1)
	require.Equal(t, "reducer", entries[0].ContextMap()["component"])
}

func TestLogger_SetLevelReachesChildren(t *testing.T) {
	root, logs := observed(zapcore.InfoLevel)
	child := root.WithComponent("orchestrator")

	require.NoError(t, root.SetLevel("debug"))
	require.Equal(t, "debug", child.GetLevel())

	child.Debug("visible now")
	require.Equal(t, 1, logs.FilterMessage("visible now").Len())

	require.Error(t, child.SetLevel("chatty"))
	require.Equal(t, "debug", root.GetLevel())

	require.NoError(t, child.SetLevel("error"))
	root.Warn("dropped")
	require.Zero(t, logs.FilterMessage("dropped").Len())
}

type levels struct {
	defaultLevel string
	components   map[string]string
	development  bool
}

func (l levels) GetComponentLevel(component string) string {
	if level, ok := l.components[component]; ok {
		return level
	}
	return l.defaultLevel
}

func (l levels) GetDefaultLevel() string { return l.defaultLevel }
func (l levels) IsDevelopment() bool     { return l.development }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	cfg := levels{
		defaultLevel: "warn",
		components:   map[string]string{"entity-service": "debug"},
	}

	service := NewComponentLoggerFromConfig("entity-service", cfg)
	require.Equal(t, "debug", service.GetLevel())
	require.Equal(t, "entity-service", service.GetComponent())

	rpc := NewComponentLoggerFromConfig("rpc", cfg)
	require.Equal(t, "warn", rpc.GetLevel())

	// each component logger owns its level
	require.NoError(t, rpc.SetLevel("error"))
	require.Equal(t, "debug", service.GetLevel())

	fallback := NewComponentLoggerFromConfig("notifier", nil)
	require.Equal(t, "info", fallback.GetLevel())
}

func TestNewComponentLogger_InvalidLevel(t *testing.T) {
	require.Panics(t, func() {
		NewComponentLogger("maintenance", "loud", false)
	})
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()

	require.NotPanics(t, func() {
		l.WithComponent("event-journal").Errorw("discarded", "entity", "item-1")
	})
	require.Equal(t, "info", l.GetLevel())
}

func TestDefaultLogger(t *testing.T) {
	previous := GetDefaultLogger()
	require.NotNil(t, previous)
	t.Cleanup(func() { SetDefaultLogger(previous) })

	nop := NewNopLogger()
	SetDefaultLogger(nop)
	require.Same(t, nop, GetDefaultLogger())
}
