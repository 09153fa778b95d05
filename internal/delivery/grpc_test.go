package delivery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
	"github.com/sumitx99/ethical-web-watchdog/internal/interaction"
	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

// startObserver runs an observer gRPC server on localhost and returns its
// address, the channel it forwards envelopes to, and its health server.
func startObserver(t *testing.T) (string, <-chan message.Envelope, *health.Server) {
	t.Helper()
	received := make(chan message.Envelope, 8)
	srv, hs := NewObserverGRPCServer(func(_ context.Context, msg message.Envelope) error {
		received <- msg
		return nil
	}, zap.NewNop())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), received, hs
}

func TestGRPCMessenger_RoundTrip(t *testing.T) {
	addr, received, _ := startObserver(t)
	m := NewGRPCMessenger(zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Register(12, addr))
	assert.Equal(t, map[int]string{12: addr}, m.Observers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Ping(ctx, 12))

	safety := interaction.AnalysisScore{Score: 90, Level: "safe", Details: "no harmful content detected"}
	msg := message.AnalysisComplete("id-42", &interaction.AnalysisResult{
		Bias:         interaction.AnalysisScore{Score: 85, Level: "low"},
		Privacy:      interaction.AnalysisScore{Score: 85, Level: "good"},
		Safety:       &safety,
		Transparency: interaction.AnalysisScore{Score: 70, Level: "moderate"},
		Status:       interaction.AnalysisComplete,
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, m.Send(ctx, 12, msg))

	select {
	case got := <-received:
		assert.Equal(t, msg, got)
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not receive the message")
	}
}

func TestGRPCMessenger_NotServing(t *testing.T) {
	addr, _, hs := startObserver(t)
	hs.SetServingStatus(ObserverServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	m := NewGRPCMessenger(zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Register(1, addr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, m.Ping(ctx, 1), ErrNoObserver)
}

func TestGRPCMessenger_Unregistered(t *testing.T) {
	m := NewGRPCMessenger(zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, m.Ping(ctx, 1), ErrNoObserver)
	assert.ErrorIs(t, m.Send(ctx, 1, message.Envelope{Type: message.TypePing}), ErrNoObserver)
	assert.False(t, m.Unregister(1))
}

func TestGRPCMessenger_UnreachableObserver(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	m := NewGRPCMessenger(zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Register(1, addr))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, m.Ping(ctx, 1))
	assert.True(t, m.Unregister(1))
}

func TestEnvelopeStruct(t *testing.T) {
	msg := message.InteractionDetected("abc", classifier.Anthropic)
	s, err := EnvelopeToStruct(msg)
	require.NoError(t, err)
	assert.Equal(t, "ai_interaction_detected", s.Fields["type"].GetStringValue())

	back, err := EnvelopeFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, msg, back)
}
