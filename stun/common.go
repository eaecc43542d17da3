package stun

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func Control(network, address string, c syscall.RawConn) (err error) {
	if err := c.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err != nil {
			return
		}

		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if err != nil {
			return
		}
	}); err != nil {
		return err
	}
	return err
}

func ListenUdp(ctx context.Context, laddr string) (*net.UDPConn, error) {
	cfg := net.ListenConfig{
		Control: Control,
	}
	pc, err := cfg.ListenPacket(ctx, "udp4", laddr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}
