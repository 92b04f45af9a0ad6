//go:build linux || darwin

package session

import "syscall"

// setSocketOptions tunes the dial for high-thread-mode transports, adapted
// from the teacher's socket tuning: disable Nagle's algorithm and grow the
// kernel send/receive buffers so many concurrent range fetches don't starve
// each other on small default windows.
func setSocketOptions(fd uintptr, bufferSize int) {
	syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, bufferSize)
	syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, bufferSize)
}
