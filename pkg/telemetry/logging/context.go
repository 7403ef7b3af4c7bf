package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	transactionIDKey
)

// Attribute names added to records logged with a context.
const (
	AttrRequestID     = "request_id"
	AttrTransactionID = "transaction_id"
)

// WithRequestID returns a context whose log records carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the request id stored by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTransactionID returns a context whose log records carry the id of the
// transaction being processed.
func WithTransactionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, transactionIDKey, id)
}

// TransactionIDFrom returns the id stored by WithTransactionID, or "".
func TransactionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(transactionIDKey).(string)
	return id
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RequestIDFrom(ctx); id != "" {
		attrs = append(attrs, slog.String(AttrRequestID, id))
	}
	if id := TransactionIDFrom(ctx); id != "" {
		attrs = append(attrs, slog.String(AttrTransactionID, id))
	}
	return attrs
}
