package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *captureExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *captureExporter) Shutdown(context.Context) error   { return nil }
func (e *captureExporter) ForceFlush(context.Context) error { return nil }

func (e *captureExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	lp, err := NewLoggerProvider(ctx, LogsConfig{Service: Service{Name: "payorder-test"}}, nil)
	require.NoError(t, err)
	assert.False(t, lp.Enabled())

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, "payorder", zapcore.InfoLevel))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestLoggerProvider_Bridge(t *testing.T) {
	exporter := &captureExporter{}
	lp := &LoggerProvider{
		provider: sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter))),
		logger:   zap.NewNop(),
	}
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.DebugLevel)
	bridged := lp.Bridge(zap.New(core), "payorder", zapcore.WarnLevel)

	bridged.Debug("quote refreshed")
	bridged.Warn("provider slow", zap.String("provider", "coingecko"))
	bridged.With(zap.String("order_id", "o-1")).Error("settlement failed")

	// the base core still sees everything
	assert.Equal(t, 3, logs.Len())
	assert.Equal(t, []string{"provider slow", "settlement failed"}, exporter.bodies())
}
