package domain

import "time"

// OutboxEntry is an order the client could not hand to the server yet.
// LocalID doubles as the idempotency key once the entry is submitted.
type OutboxEntry struct {
	LocalID   string
	Payload   OrderRequest
	CreatedAt time.Time
}

// BatchResult is the server's answer to a batch of outbox entries: the
// order id for each accepted LocalID and a reason for each rejected one.
type BatchResult struct {
	IDs      map[string]int64
	Rejected map[string]string
}

// OfflineSuffix tags the mode of orders that went through the outbox.
const OfflineSuffix = " (OFFLINE)"
