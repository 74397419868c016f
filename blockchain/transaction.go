package blockchain

import "time"

// Transaction is a value transfer waiting in the pending pool or embedded in a block.
// Field order is the canonical hashing order (lexicographic by JSON key); do not reorder.
type Transaction struct {
	Amount      int64   `json:"amount"`
	Destination string  `json:"destination"`
	Origin      string  `json:"origin"`
	Timestamp   float64 `json:"timestamp"`
}

// NewTransaction stamps a transaction with the current time.
func NewTransaction(origin, destination string, amount int64) *Transaction {
	return &Transaction{
		Origin:      origin,
		Destination: destination,
		Amount:      amount,
		Timestamp:   Now(),
	}
}

// Now returns the current Unix time in seconds with sub-second precision.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
