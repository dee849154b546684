package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker reports whether a backend accepts connections
type TCPChecker struct {
	// Address is the backend to dial, e.g. "127.0.0.1:3000"
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP health checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 3 * time.Second,
	}
}

// Check dials the backend once
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return result(start, false, fmt.Sprintf("backend %s not accepting connections: %v", t.Address, err))
	}
	conn.Close()

	return result(start, true, fmt.Sprintf("backend %s accepting connections", t.Address))
}

// Type returns the health check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
