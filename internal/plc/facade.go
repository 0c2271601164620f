package plc

import "context"

// Facade is the capability abstraction over one controller: named
// analog/digital reads and writes plus connection lifecycle. The test
// bench holds two instances, one for the tester controller and one for
// the target under test.
//
// Implementations serialize concurrent calls internally; callers may
// issue operations from many goroutines without external locking.
type Facade interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	ReadAnalog(ctx context.Context, address string) (float64, error)
	WriteAnalog(ctx context.Context, address string, value float64) error
	ReadDigital(ctx context.Context, address string) (bool, error)
	WriteDigital(ctx context.Context, address string, value bool) error
}
