package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"

	"github.com/Versifine/tcprelay/internal/event"
	"github.com/Versifine/tcprelay/internal/sockopt"
)

type Server struct {
	listenerAddr string
	targetAddr   string
	tuning       sockopt.Options
	buffers      *BufferPool
	bus          *event.Bus
	dialer       net.Dialer
}

type Option func(*Server)

// WithTuning 对每个入站和出站连接应用相同的 socket 参数
func WithTuning(opts sockopt.Options) Option {
	return func(s *Server) {
		s.tuning = opts
	}
}

// WithCopyBufferSize 设置每个拷贝方向使用的缓冲区大小
func WithCopyBufferSize(size int) Option {
	return func(s *Server) {
		s.buffers = NewBufferPool(size)
	}
}

func NewServer(listenerAddr, targetAddr string, opts ...Option) *Server {
	s := &Server{
		listenerAddr: listenerAddr,
		targetAddr:   targetAddr,
		buffers:      NewBufferPool(DefaultCopyBufferSize),
		bus:          event.NewBus(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Bus() *event.Bus {
	return s.bus
}

// Start 绑定监听地址并开始服务，绑定失败直接返回错误
func (s *Server) Start(ctx context.Context) error {
	netListener, err := net.Listen("tcp", s.listenerAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.listenerAddr, err)
	}
	return s.Serve(ctx, netListener)
}

// Serve 在 ln 上循环 accept，对每个入站连接拨号目标、调优并启动中继。
// 中继在独立的 goroutine 中运行，accept 循环不等待中继结束。
// ctx 取消时关闭监听并返回 nil；socket 调优校验失败会返回错误，调用方应终止进程。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		slog.Info("Shutting down proxy server")
		_ = ln.Close()
	})
	defer stop()

	slog.Info("Proxy server listening", "listenerAddr", ln.Addr().String(), "targetAddr", s.targetAddr,
		"copyBuffer", s.buffers.Size(), "tuning", s.tuning)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("Proxy server stopped")
				return nil
			}
			slog.Error("Error accepting connection", "error", err)
			s.bus.Publish(event.EventAcceptFailed, &event.AcceptFailedEvent{Err: err})
			continue
		}
		if err := s.handleConnection(ctx, conn); err != nil {
			return err
		}
	}
}

// handleConnection 只有 socket 调优失败才返回错误
func (s *Server) handleConnection(ctx context.Context, inbound net.Conn) error {
	outbound, err := s.dialer.DialContext(ctx, "tcp", s.targetAddr)
	if err != nil {
		slog.Error("Error dialing target", "client", inbound.RemoteAddr(), "target", s.targetAddr, "error", err)
		s.bus.Publish(event.EventDialFailed, &event.DialFailedEvent{
			Inbound: inbound.RemoteAddr().String(),
			Target:  s.targetAddr,
			Err:     err,
		})
		_ = inbound.Close()
		return nil
	}

	name := relayName(inbound, outbound)
	if err := s.tune(ctx, name, inbound, outbound); err != nil {
		_ = inbound.Close()
		_ = outbound.Close()
		return fmt.Errorf("tune relay %s: %w", name, err)
	}

	slog.Info("Relay connected", "relay", name)
	s.bus.Publish(event.EventRelayOpened, &event.RelayOpenedEvent{
		Name:     name,
		Inbound:  inbound.RemoteAddr().String(),
		Outbound: outbound.RemoteAddr().String(),
	})
	go s.relay(name, inbound, outbound)
	return nil
}

func (s *Server) tune(ctx context.Context, name string, conns ...net.Conn) error {
	if s.tuning.IsZero() {
		return nil
	}
	for _, c := range conns {
		sc, ok := c.(syscall.Conn)
		if !ok {
			return fmt.Errorf("%s: %w", c.RemoteAddr(), sockopt.ErrUnsupported)
		}
		if err := sockopt.Apply(sc, s.tuning); err != nil {
			return fmt.Errorf("%s: %w", c.RemoteAddr(), err)
		}
		if !slog.Default().Enabled(ctx, slog.LevelDebug) {
			continue
		}
		info, err := sockopt.Inspect(sc)
		if err != nil {
			slog.Warn("Error inspecting socket", "relay", name, "peer", c.RemoteAddr(), "error", err)
			continue
		}
		slog.Debug("Socket tuned", "relay", name, "peer", c.RemoteAddr(), "socket", info)
	}
	return nil
}
