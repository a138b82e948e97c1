package database

import "context"

// nextSequence is the single atomic read-modify-write behind order-number
// allocation. The upsert starts a new prefix at 1 and otherwise increments
// in place; RETURNING hands back the value this caller owns. Two concurrent
// callers can never observe the same sequence.
const nextSequence = `
INSERT INTO counters (prefix, seq)
VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET seq = counters.seq + 1
RETURNING seq`

func (q *Queries) NextSequence(ctx context.Context, prefix string) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, nextSequence, prefix).Scan(&seq)
	return seq, err
}
