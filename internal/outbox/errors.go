package outbox

import "fmt"

// StorageError wraps a local database failure during queueing or replay.
// The caller can tell storage trouble apart from delivery trouble.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("outbox storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SendFailure records an exhausted delivery attempt. It is the payload of
// the outbox.failed event and the value stored in the entry's last_error.
type SendFailure struct {
	ClientMsgID string
	Attempts    int
	Err         error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send %s failed after %d attempts: %v", e.ClientMsgID, e.Attempts, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
