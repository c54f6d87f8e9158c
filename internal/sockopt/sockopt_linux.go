//go:build linux

package sockopt

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var availableCongestionControlPath = "/proc/sys/net/ipv4/tcp_available_congestion_control"

func apply(fd int, opts Options) error {
	if opts.SendBuffer > 0 {
		if err := setBuffer(fd, unix.SO_SNDBUF, "SO_SNDBUF", opts.SendBuffer); err != nil {
			return err
		}
	}
	if opts.RecvBuffer > 0 {
		if err := setBuffer(fd, unix.SO_RCVBUF, "SO_RCVBUF", opts.RecvBuffer); err != nil {
			return err
		}
	}
	if opts.CongestionControl != "" {
		if err := unix.SetsockoptString(fd, unix.IPPROTO_TCP, unix.TCP_CONGESTION, opts.CongestionControl); err != nil {
			return fmt.Errorf("sockopt: set TCP_CONGESTION %q: %w", opts.CongestionControl, err)
		}
		got, err := unix.GetsockoptString(fd, unix.IPPROTO_TCP, unix.TCP_CONGESTION)
		if err != nil {
			return fmt.Errorf("sockopt: get TCP_CONGESTION: %w", err)
		}
		if got != opts.CongestionControl {
			return &MismatchError{Option: "TCP_CONGESTION", Want: opts.CongestionControl, Got: got}
		}
	}
	return nil
}

// setBuffer 内核会把缓冲区大小翻倍保存，读回时按两倍校验
func setBuffer(fd, opt int, name string, size int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, opt, size); err != nil {
		return fmt.Errorf("sockopt: set %s %d: %w", name, size, err)
	}
	got, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, opt)
	if err != nil {
		return fmt.Errorf("sockopt: get %s: %w", name, err)
	}
	if want := 2 * size; got != want {
		return &MismatchError{Option: name, Want: strconv.Itoa(want), Got: strconv.Itoa(got)}
	}
	return nil
}

func inspect(fd int) (Info, error) {
	var info Info
	var err error
	if info.SendBuffer, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF); err != nil {
		return info, fmt.Errorf("sockopt: get SO_SNDBUF: %w", err)
	}
	if info.RecvBuffer, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF); err != nil {
		return info, fmt.Errorf("sockopt: get SO_RCVBUF: %w", err)
	}
	if info.CongestionControl, err = unix.GetsockoptString(fd, unix.IPPROTO_TCP, unix.TCP_CONGESTION); err != nil {
		return info, fmt.Errorf("sockopt: get TCP_CONGESTION: %w", err)
	}
	return info, nil
}

// AvailableCongestionControl 列出内核当前可用的拥塞控制算法，仅用于启动日志
func AvailableCongestionControl() ([]string, error) {
	data, err := os.ReadFile(availableCongestionControlPath)
	if err != nil {
		return nil, fmt.Errorf("sockopt: read available congestion control: %w", err)
	}
	return strings.Fields(string(data)), nil
}
