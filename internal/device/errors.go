package device

import "fmt"

// NotMasterError is returned by any write operation attempted outside the
// Master state, per spec.md §4.3 and §8 property 9: "in any state other
// than Master, write_entity returns NotMaster and performs no network I/O."
type NotMasterError struct {
	Device string
	State  State
}

func (e *NotMasterError) Error() string {
	return fmt.Sprintf("device %s: not master (state=%s)", e.Device, e.State)
}

// TransportError wraps a dial or stream-level failure.
type TransportError struct {
	Device string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device %s: transport: %v", e.Device, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrPipeconfUnset is returned by SendPacketOut when no pipeline config has
// been pushed to the device yet.
var ErrPipeconfUnset = fmt.Errorf("device: no pipeconf set")

// ErrStreamClosed is returned by SendPacketOut when no stream has been
// opened or the connection has been marked Disconnected.
var ErrStreamClosed = fmt.Errorf("device: stream closed")

// ErrReceiverAlreadyTaken is returned by the connection manager when
// TakeReceiver reports false (TakeReceiver itself returns nil, false),
// per spec.md §4.3: "a one-shot transfer... Returns None if already taken."
var ErrReceiverAlreadyTaken = fmt.Errorf("device: receiver already taken")
