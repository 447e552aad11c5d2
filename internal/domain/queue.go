package domain

import "time"

// Message is a raw message handed out by the queue.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
}

// ReceiveOptions controls a single long-poll receive.
type ReceiveOptions struct {
	MaxMessages       int32
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

// SendOptions controls a single publish.
type SendOptions struct {
	Delay      time.Duration
	Attributes map[string]string
}

// QueueStats is an approximate snapshot of a queue's depth.
type QueueStats struct {
	Name      string `json:"name"`
	Available int64  `json:"available"`
	InFlight  int64  `json:"in_flight"`
	Delayed   int64  `json:"delayed"`
}
