// Package proxy 负责 TCP 连接管理和双向字节转发
// 这是核心管道模块
package proxy

import (
	"net"
)

type closeReader interface {
	CloseRead() error
}

type closeWriter interface {
	CloseWrite() error
}

// readHalf 只暴露连接的读方向，归属于单个拷贝方向
type readHalf struct {
	conn net.Conn
}

func (r readHalf) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

// Close 只关闭读方向，另一方向不受影响
func (r readHalf) Close() error {
	if cr, ok := r.conn.(closeReader); ok {
		return cr.CloseRead()
	}
	return nil
}

// writeHalf 只暴露连接的写方向，归属于单个拷贝方向
type writeHalf struct {
	conn net.Conn
}

func (w writeHalf) Write(p []byte) (int, error) {
	return w.conn.Write(p)
}

// Close 发送 FIN，对端读到 EOF 后仍可继续向我们写数据
func (w writeHalf) Close() error {
	if cw, ok := w.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

// split 把一个双工连接拆成互不共享状态的读半部和写半部
func split(conn net.Conn) (readHalf, writeHalf) {
	return readHalf{conn: conn}, writeHalf{conn: conn}
}
