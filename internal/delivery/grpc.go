package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/sumitx99/ethical-web-watchdog/internal/message"
)

// GRPCMessenger delivers to observers that registered a gRPC endpoint for
// their tab. Ping is a health check against the observer service.
type GRPCMessenger struct {
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[int]*observerConn
}

type observerConn struct {
	addr   string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

func NewGRPCMessenger(logger *zap.Logger) *GRPCMessenger {
	return &GRPCMessenger{logger: logger, conns: make(map[int]*observerConn)}
}

// Register points tabID at the observer listening on addr, replacing any
// previous registration. The connection is established lazily.
func (m *GRPCMessenger) Register(tabID int, addr string) error {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return fmt.Errorf("Register: %w", err)
	}

	m.mu.Lock()
	prev := m.conns[tabID]
	m.conns[tabID] = &observerConn{addr: addr, conn: conn, health: healthpb.NewHealthClient(conn)}
	m.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	}
	m.logger.Info("observer registered", zap.Int("tab_id", tabID), zap.String("addr", addr))
	return nil
}

// Unregister removes the observer for tabID. It reports whether one existed.
func (m *GRPCMessenger) Unregister(tabID int) bool {
	m.mu.Lock()
	prev, ok := m.conns[tabID]
	delete(m.conns, tabID)
	m.mu.Unlock()

	if ok {
		_ = prev.conn.Close()
		m.logger.Info("observer unregistered", zap.Int("tab_id", tabID), zap.String("addr", prev.addr))
	}
	return ok
}

// Observers returns the registered endpoint per tab.
func (m *GRPCMessenger) Observers() map[int]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]string, len(m.conns))
	for tab, c := range m.conns {
		out[tab] = c.addr
	}
	return out
}

func (m *GRPCMessenger) lookup(tabID int) (*observerConn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[tabID]
	if !ok {
		return nil, ErrNoObserver
	}
	return c, nil
}

func (m *GRPCMessenger) Ping(ctx context.Context, tabID int) error {
	c, err := m.lookup(tabID)
	if err != nil {
		return err
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ObserverServiceName})
	if err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("Ping: observer %s: %w", resp.GetStatus(), ErrNoObserver)
	}
	return nil
}

func (m *GRPCMessenger) Send(ctx context.Context, tabID int, msg message.Envelope) error {
	c, err := m.lookup(tabID)
	if err != nil {
		return err
	}
	payload, err := EnvelopeToStruct(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, deliverMethod, payload, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	return nil
}

// Close drops every registration.
func (m *GRPCMessenger) Close() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[int]*observerConn)
	m.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
