// ============================================================================
// bounce gRPC health 服務
// ============================================================================
//
// Package: internal/server
// 文件: server.go
// 功能: 以標準 grpc.health.v1 協定回報遊戲迴圈是否正在執行
//
// 服務名稱:
//   - ""            整體狀態
//   - ServiceName   遊戲迴圈
//
// 狀態對應:
//   - Status.Running 且 Playing → SERVING
//   - 其他（尚未啟動、選單覆蓋、已停止）→ NOT_SERVING
//
// ============================================================================

package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ChuLiYu/bounce/internal/controller"
)

// ServiceName 遊戲迴圈的 health 服務名稱
const ServiceName = "bounce.Game"

// DefaultPollInterval 狀態同步間隔
const DefaultPollInterval = 500 * time.Millisecond

// StatusSource is the controller as seen by the health service.
type StatusSource interface {
	Status() controller.Status
}

// Server serves grpc.health.v1 for the game loop.
type Server struct {
	source   StatusSource
	grpc     *grpc.Server
	health   *health.Server
	port     int
	interval time.Duration

	mu       sync.Mutex
	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// Option 設定 Server
type Option func(*Server)

// WithPollInterval 設定狀態同步間隔
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.interval = d }
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a health server for source on port.
func NewServer(port int, source StatusSource, opts ...Option) *Server {
	s := &Server{
		source:   source,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		port:     port,
		interval: DefaultPollInterval,
		stopCh:   make(chan struct{}),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.sync()
	return s
}

// Start listens on the configured port. Serve errors are sent to errc.
func (s *Server) Start(errc chan<- error) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on :%d: %w", s.port, err)
	}
	s.Serve(lis, errc)
	return nil
}

// Serve serves on lis and starts syncing the controller status.
func (s *Server) Serve(lis net.Listener, errc chan<- error) {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("health server: %w", err)
		}
	}()
	go s.syncLoop()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("health server listening")
}

func (s *Server) syncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sync()
		}
	}
}

// sync copies the controller status into the health server.
func (s *Server) sync() {
	st := servingStatus(s.source.Status())
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func servingStatus(st controller.Status) healthpb.HealthCheckResponse_ServingStatus {
	if st.Running && st.Playing {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop marks every service NOT_SERVING and drains open RPCs.
func (s *Server) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
	}
	close(s.stopCh)
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.wg.Wait()
	s.log.Info().Msg("health server stopped")
}
