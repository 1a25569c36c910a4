package controller

import (
	"github.com/dokzlo13/dimmerd/internal/engine"
)

// Sender is a cheap, copyable handle for queueing commands.
type Sender struct {
	mailbox *mailbox
}

// Send queues cmd without blocking. Commands from one goroutine are delivered
// in send order. It fails with ErrStopped once the loop has exited.
func (s Sender) Send(cmd engine.Command) error {
	if s.mailbox == nil {
		return ErrStopped
	}
	return s.mailbox.push(cmd)
}
