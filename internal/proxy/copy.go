package proxy

import (
	"errors"
	"io"
	"sync"
	"syscall"
)

// DefaultCopyBufferSize 单向拷贝缓冲区的默认大小
const DefaultCopyBufferSize = 128 * 1024

var (
	// ErrWriteZero 写操作没有报错却写入了 0 字节
	ErrWriteZero = errors.New("write zero byte into writer")
	// ErrEmptyBuffer 拷贝缓冲区长度为 0
	ErrEmptyBuffer = errors.New("copy buffer is empty")
)

// Copy 把 src 的数据持续写入 dst，直到 src 读到 EOF 或出现不可恢复的错误。
// buf 的长度在整个拷贝过程中保持不变。返回成功写入 dst 的总字节数。
func Copy(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	var transferred int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := writeFull(dst, buf[:nr])
			transferred += int64(nw)
			if werr != nil {
				return transferred, werr
			}
		}
		switch {
		case rerr == nil:
			if nr == 0 {
				// 零长度读视为对端关闭
				return transferred, nil
			}
		case errors.Is(rerr, io.EOF):
			return transferred, nil
		case isInterrupted(rerr):
			continue
		default:
			return transferred, rerr
		}
	}
}

// writeFull 写完 p 的全部内容，部分写入和 EINTR 会继续重试剩余部分
func writeFull(dst io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := dst.Write(p[written:])
		if n < 0 || n > len(p)-written {
			return written, io.ErrShortWrite
		}
		written += n
		if err != nil {
			if isInterrupted(err) {
				continue
			}
			return written, err
		}
		if n == 0 {
			return written, ErrWriteZero
		}
	}
	return written, nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// BufferPool 复用固定大小的拷贝缓冲区
type BufferPool struct {
	size int
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultCopyBufferSize
	}
	p := &BufferPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *BufferPool) Size() int {
	return p.size
}

func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	p.pool.Put(buf)
}
