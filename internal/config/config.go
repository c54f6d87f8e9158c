package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Versifine/tcprelay/internal/sockopt"
)

// DefaultCopyBuffer 单向拷贝缓冲区的默认大小
const DefaultCopyBuffer = 131072

// maxSocketBuffer 内核把 SO_SNDBUF/SO_RCVBUF 翻倍后存进 C int，更大的值会溢出
const maxSocketBuffer = math.MaxInt32 / 2

type Config struct {
	Listen  ListenConfig  `yaml:"listen" toml:"listen"`
	Target  TargetConfig  `yaml:"target" toml:"target"`
	Tuning  TuningConfig  `yaml:"tuning" toml:"tuning"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

type ListenConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type TargetConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// TuningConfig 为 0 或空的字段表示不设置
type TuningConfig struct {
	SendBuffer        int    `yaml:"send_buffer" toml:"send_buffer"`
	RecvBuffer        int    `yaml:"recv_buffer" toml:"recv_buffer"`
	CongestionControl string `yaml:"congestion_control" toml:"congestion_control"`
	CopyBuffer        int    `yaml:"copy_buffer" toml:"copy_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

func Default() *Config {
	return &Config{
		Tuning: TuningConfig{CopyBuffer: DefaultCopyBuffer},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load 读取配置文件并覆盖默认值，按扩展名选择 YAML 或 TOML
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := unmarshalByExt(data, path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshalByExt(data []byte, path string, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, v)
	default:
		return yaml.Unmarshal(data, v)
	}
}

// Validate 检查地址和调优参数是否合法
func (c *Config) Validate() error {
	var errs []error
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid listen port %d", c.Listen.Port))
	}
	if c.Target.Host == "" {
		errs = append(errs, errors.New("target host is required"))
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid target port %d", c.Target.Port))
	}
	if c.Tuning.SendBuffer < 0 || c.Tuning.SendBuffer > maxSocketBuffer {
		errs = append(errs, fmt.Errorf("invalid send_buffer %d", c.Tuning.SendBuffer))
	}
	if c.Tuning.RecvBuffer < 0 || c.Tuning.RecvBuffer > maxSocketBuffer {
		errs = append(errs, fmt.Errorf("invalid recv_buffer %d", c.Tuning.RecvBuffer))
	}
	if c.Tuning.CopyBuffer <= 0 {
		errs = append(errs, fmt.Errorf("invalid copy_buffer %d", c.Tuning.CopyBuffer))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port))
}

func (c *Config) TargetAddr() string {
	return net.JoinHostPort(c.Target.Host, strconv.Itoa(c.Target.Port))
}

func (c *Config) SockoptOptions() sockopt.Options {
	return sockopt.Options{
		SendBuffer:        c.Tuning.SendBuffer,
		RecvBuffer:        c.Tuning.RecvBuffer,
		CongestionControl: c.Tuning.CongestionControl,
	}
}

// SetAddr 把 host:port 形式的地址拆开写入 host 和 port
func SetAddr(addr string, host *string, port *int) error {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	*host, *port = h, n
	return nil
}
