package proxy

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/Versifine/tcprelay/internal/event"
)

type direction struct {
	tag string
	n   int64
	err error
}

func relayName(inbound, outbound net.Conn) string {
	return fmt.Sprintf("%s <-> %s", inbound.RemoteAddr(), outbound.RemoteAddr())
}

// relay 在一对连接之间双向转发，直到两个方向都结束。
// 一个方向结束不会中断另一个方向，未发送完的数据可以继续排空。
func (s *Server) relay(name string, inbound, outbound net.Conn) {
	defer inbound.Close()
	defer outbound.Close()

	inR, inW := split(inbound)
	outR, outW := split(outbound)

	inToOut := direction{tag: "in->out"}
	outToIn := direction{tag: "out->in"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(name, &inToOut, outW, inR)
	}()
	go func() {
		defer wg.Done()
		s.pump(name, &outToIn, inW, outR)
	}()
	wg.Wait()

	slog.Info("Relay closed", "relay", name, "in_to_out", inToOut.n, "out_to_in", outToIn.n)
	s.bus.Publish(event.EventRelayClosed, &event.RelayClosedEvent{
		Name:       name,
		InToOut:    inToOut.n,
		OutToIn:    outToIn.n,
		InToOutErr: inToOut.err,
		OutToInErr: outToIn.err,
	})
}

// pump 运行一个方向的拷贝循环，结束后释放该方向拥有的读半部和写半部
func (s *Server) pump(name string, d *direction, dst writeHalf, src readHalf) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	d.n, d.err = Copy(dst, src, *buf)
	if d.err != nil {
		slog.Error("Error relaying "+d.tag, "relay", name, "bytes", d.n, "error", d.err)
	} else {
		slog.Debug("Direction finished "+d.tag, "relay", name, "bytes", d.n)
	}
	_ = dst.Close()
	_ = src.Close()
}
