//go:build !linux

package sockopt

func apply(int, Options) error {
	return ErrUnsupported
}

func inspect(int) (Info, error) {
	return Info{}, ErrUnsupported
}

func AvailableCongestionControl() ([]string, error) {
	return nil, ErrUnsupported
}
