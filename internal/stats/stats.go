// Package stats 订阅中继事件，统计活跃中继数、累计字节和失败次数
package stats

import (
	"log/slog"
	"sync/atomic"

	"github.com/Versifine/tcprelay/internal/event"
)

type Tracker struct {
	active         atomic.Int64
	opened         atomic.Int64
	closed         atomic.Int64
	failedRelays   atomic.Int64
	dialFailures   atomic.Int64
	acceptFailures atomic.Int64
	inToOutBytes   atomic.Int64
	outToInBytes   atomic.Int64
}

// Snapshot 某一时刻的计数
type Snapshot struct {
	Active         int64
	Opened         int64
	Closed         int64
	FailedRelays   int64
	DialFailures   int64
	AcceptFailures int64
	InToOutBytes   int64
	OutToInBytes   int64
}

func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("active", s.Active),
		slog.Int64("opened", s.Opened),
		slog.Int64("closed", s.Closed),
		slog.Int64("failed", s.FailedRelays),
		slog.Int64("dial_failures", s.DialFailures),
		slog.Int64("accept_failures", s.AcceptFailures),
		slog.Int64("in_to_out", s.InToOutBytes),
		slog.Int64("out_to_in", s.OutToInBytes),
	)
}

// NewTracker 创建 Tracker 并订阅 bus 上的中继事件
func NewTracker(bus *event.Bus) *Tracker {
	t := &Tracker{}
	bus.Subscribe(event.EventRelayOpened, t.onOpened)
	bus.Subscribe(event.EventRelayClosed, t.onClosed)
	bus.Subscribe(event.EventDialFailed, t.onDialFailed)
	bus.Subscribe(event.EventAcceptFailed, t.onAcceptFailed)
	return t
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Active:         t.active.Load(),
		Opened:         t.opened.Load(),
		Closed:         t.closed.Load(),
		FailedRelays:   t.failedRelays.Load(),
		DialFailures:   t.dialFailures.Load(),
		AcceptFailures: t.acceptFailures.Load(),
		InToOutBytes:   t.inToOutBytes.Load(),
		OutToInBytes:   t.outToInBytes.Load(),
	}
}

func (t *Tracker) onOpened(raw any) {
	evt, ok := raw.(*event.RelayOpenedEvent)
	if !ok {
		return
	}
	t.opened.Add(1)
	active := t.active.Add(1)
	slog.Debug("Relay opened", "relay", evt.Name, "active", active)
}

// onClosed 的 handler 与 onOpened 并发执行，active 可能短暂为负
func (t *Tracker) onClosed(raw any) {
	evt, ok := raw.(*event.RelayClosedEvent)
	if !ok {
		return
	}
	t.closed.Add(1)
	t.active.Add(-1)
	t.inToOutBytes.Add(evt.InToOut)
	t.outToInBytes.Add(evt.OutToIn)
	if evt.InToOutErr != nil || evt.OutToInErr != nil {
		t.failedRelays.Add(1)
	}
	slog.Info("Relay stats", "relay", evt.Name, "stats", t.Snapshot())
}

func (t *Tracker) onDialFailed(raw any) {
	evt, ok := raw.(*event.DialFailedEvent)
	if !ok {
		return
	}
	n := t.dialFailures.Add(1)
	slog.Warn("Dial failures so far", "target", evt.Target, "total", n)
}

func (t *Tracker) onAcceptFailed(raw any) {
	if _, ok := raw.(*event.AcceptFailedEvent); !ok {
		return
	}
	n := t.acceptFailures.Add(1)
	slog.Warn("Accept failures so far", "total", n)
}
