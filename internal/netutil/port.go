package netutil

import (
	"errors"
	"fmt"
	"net"
)

// SelectBindAddr resolves the server's listen address. The preferred
// address wins when it is free; when it is busy, autoFallback allows
// walking the candidate list instead of failing the startup.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if listenable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		if listenable(addr) {
			return addr, nil
		}
	}
	return "", errors.New("no available bind addresses")
}

func listenable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FreePort asks the kernel for an unused TCP port on the given address.
// Each session's browser gets its own debugging port this way.
func FreePort(address string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(address, "0"))
	if err != nil {
		return 0, fmt.Errorf("free port on %s: %w", address, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
