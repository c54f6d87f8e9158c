// Package sockopt 负责对每个连接设置并校验 socket 缓冲区大小和拥塞控制算法
package sockopt

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
)

// ErrUnsupported 当前平台不支持所请求的 socket 选项
var ErrUnsupported = errors.New("socket tuning is not supported on this platform")

// Options 对所有连接生效的调优参数，零值表示不设置
type Options struct {
	SendBuffer        int
	RecvBuffer        int
	CongestionControl string
}

func (o Options) IsZero() bool {
	return o.SendBuffer <= 0 && o.RecvBuffer <= 0 && o.CongestionControl == ""
}

func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("sndbuf", o.SendBuffer),
		slog.Int("rcvbuf", o.RecvBuffer),
		slog.String("congestion", o.CongestionControl),
	)
}

// Info 连接当前生效的 socket 参数
type Info struct {
	SendBuffer        int
	RecvBuffer        int
	CongestionControl string
}

func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("sndbuf", i.SendBuffer),
		slog.Int("rcvbuf", i.RecvBuffer),
		slog.String("congestion", i.CongestionControl),
	)
}

// MismatchError 设置后读回的值与期望不一致
type MismatchError struct {
	Option string
	Want   string
	Got    string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("sockopt %s: read back %s, want %s", e.Option, e.Got, e.Want)
}

// Apply 依次设置 opts 中配置的选项，并读回校验。
// 缓冲区大小按内核的约定校验为请求值的两倍，拥塞控制算法必须完全一致。
func Apply(conn syscall.Conn, opts Options) error {
	if opts.IsZero() {
		return nil
	}
	return control(conn, func(fd int) error {
		return apply(fd, opts)
	})
}

// Inspect 读取连接当前的发送缓冲区、接收缓冲区和拥塞控制算法
func Inspect(conn syscall.Conn) (Info, error) {
	var info Info
	err := control(conn, func(fd int) error {
		var err error
		info, err = inspect(fd)
		return err
	})
	return info, err
}

func control(conn syscall.Conn, fn func(fd int) error) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("sockopt: syscall conn: %w", err)
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return fmt.Errorf("sockopt: control: %w", err)
	}
	return opErr
}
