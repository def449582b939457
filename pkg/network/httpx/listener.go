package httpx

import "net"

type Listener struct {
	net.Listener
}

func NewListener(address string) (*Listener, error) {
	ls, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Listener{ls}, nil
}
