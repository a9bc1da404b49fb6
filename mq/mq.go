package mq

import "context"

type MessageQueue interface {
	Send(ctx context.Context, msg Message) error
	// Receive long-polls for up to maxMessages. An empty slice means the poll
	// timed out with nothing to deliver.
	Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]Message, error)
	// Delete acknowledges messages and returns the ones the queue refused.
	Delete(ctx context.Context, msgs []Message) ([]Message, error)
}

// Message.Id is the receipt handle on received messages and empty on send.
type Message struct {
	Id   string
	Type string
	Body string
}

const TypeOrphanObject = "orphan_object"
