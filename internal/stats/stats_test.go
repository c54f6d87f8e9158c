package stats

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Versifine/tcprelay/internal/event"
	"github.com/Versifine/tcprelay/internal/proxy"
)

// waitSnapshot 事件是异步投递的，轮询直到条件满足
func waitSnapshot(t *testing.T, tr *Tracker, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := tr.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待统计结果超时, 当前 %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTrackerCountsRelays 测试打开/关闭事件更新活跃数和字节数
func TestTrackerCountsRelays(t *testing.T) {
	bus := event.NewBus()
	tr := NewTracker(bus)

	bus.Publish(event.EventRelayOpened, &event.RelayOpenedEvent{Name: "a <-> b"})
	bus.Publish(event.EventRelayOpened, &event.RelayOpenedEvent{Name: "c <-> d"})
	waitSnapshot(t, tr, func(s Snapshot) bool { return s.Opened == 2 })

	bus.Publish(event.EventRelayClosed, &event.RelayClosedEvent{Name: "a <-> b", InToOut: 10, OutToIn: 20})
	s := waitSnapshot(t, tr, func(s Snapshot) bool { return s.Closed == 1 })

	if s.Active != 1 {
		t.Errorf("Active = %d, 期望 1", s.Active)
	}
	if s.InToOutBytes != 10 || s.OutToInBytes != 20 {
		t.Errorf("字节数 = %d/%d, 期望 10/20", s.InToOutBytes, s.OutToInBytes)
	}
	if s.FailedRelays != 0 {
		t.Errorf("FailedRelays = %d, 期望 0", s.FailedRelays)
	}
}

// TestTrackerCountsFailures 测试失败事件计数
func TestTrackerCountsFailures(t *testing.T) {
	bus := event.NewBus()
	tr := NewTracker(bus)
	boom := errors.New("connection reset")

	bus.Publish(event.EventRelayClosed, &event.RelayClosedEvent{OutToInErr: boom})
	bus.Publish(event.EventDialFailed, &event.DialFailedEvent{Target: "127.0.0.1:1", Err: boom})
	bus.Publish(event.EventDialFailed, &event.DialFailedEvent{Target: "127.0.0.1:1", Err: boom})
	bus.Publish(event.EventAcceptFailed, &event.AcceptFailedEvent{Err: boom})

	s := waitSnapshot(t, tr, func(s Snapshot) bool {
		return s.FailedRelays == 1 && s.DialFailures == 2 && s.AcceptFailures == 1
	})
	if s.Closed != 1 {
		t.Errorf("Closed = %d, 期望 1", s.Closed)
	}
}

// TestTrackerIgnoresWrongPayload 事件载荷类型不符时不计数
func TestTrackerIgnoresWrongPayload(t *testing.T) {
	tr := &Tracker{}
	tr.onOpened("not an event")
	tr.onClosed(42)
	tr.onDialFailed(nil)
	tr.onAcceptFailed(struct{}{})

	if s := tr.Snapshot(); s != (Snapshot{}) {
		t.Errorf("Snapshot() = %+v, 期望全为 0", s)
	}
}

// TestTrackerFollowsServer 经过真实代理的一次中继会被 Tracker 统计到
func TestTrackerFollowsServer(t *testing.T) {
	backend, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("启动回显服务器失败: %v", err)
	}
	defer backend.Close()
	go func() {
		for {
			conn, err := backend.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("启动 proxy 监听失败: %v", err)
	}
	server := proxy.NewServer(ln.Addr().String(), backend.Addr().String())
	tr := NewTracker(server.Bus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln)
	}()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("客户端连接 proxy 失败: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	payload := []byte("counted")
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	_ = conn.Close()

	s := waitSnapshot(t, tr, func(s Snapshot) bool { return s.Opened == 1 && s.Closed == 1 })
	if s.Active != 0 {
		t.Errorf("Active = %d, 期望 0", s.Active)
	}
	if s.InToOutBytes != int64(len(payload)) || s.OutToInBytes != int64(len(payload)) {
		t.Errorf("字节数 = %d/%d, 期望均为 %d", s.InToOutBytes, s.OutToInBytes, len(payload))
	}
}
