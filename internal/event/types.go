package event

const (
	EventRelayOpened  = "relay.opened"
	EventRelayClosed  = "relay.closed"
	EventDialFailed   = "dial.failed"
	EventAcceptFailed = "accept.failed"
)

// RelayOpenedEvent 一对入站/出站连接建立完成并开始转发
type RelayOpenedEvent struct {
	Name     string
	Inbound  string
	Outbound string
}

// RelayClosedEvent 两个方向的拷贝都已结束
type RelayClosedEvent struct {
	Name       string
	InToOut    int64
	OutToIn    int64
	InToOutErr error
	OutToInErr error
}

// DialFailedEvent 拨号目标失败，入站连接已被丢弃
type DialFailedEvent struct {
	Inbound string
	Target  string
	Err     error
}

type AcceptFailedEvent struct {
	Err error
}
