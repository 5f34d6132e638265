package logger

import (
	"go.uber.org/zap"
)

const (
	// BoxId is the field key containing a ledger box id.
	BoxId = "box_id"
	// Caller is the field key naming the function that logged.
	Caller = "caller"
	// Discussion is the field key containing the selected discussion id.
	Discussion = "discussion"
	// DurationMs is the field key containing the execution duration in milliseconds.
	DurationMs = "durationMs"
	// Pointer is the field key containing the R5 object pointer.
	Pointer = "pointer"
	// RemoteAddr is the field key containing HTTP remote address.
	RemoteAddr = "remoteAddr"
	// TokenId is the field key containing a token id.
	TokenId = "token_id"
	// TxId is the field key containing a transaction id.
	TxId = "tx_id"
	// URL is the field key containing the URL path.
	URL = "url_path"
)

// Fields is a collection of key/value pairs to include with a log message.
type Fields map[string]interface{}

// Zap converts the fields to zap fields, keys are emitted in no particular order.
func (f Fields) Zap() []zap.Field {
	fields := make([]zap.Field, 0, len(f))
	for k, v := range f {
		switch vt := v.(type) {
		case error:
			fields = append(fields, zap.NamedError(k, vt))
		default:
			fields = append(fields, zap.Any(k, vt))
		}
	}
	return fields
}

// With returns the global logger annotated with the fields.
func (f Fields) With() *zap.Logger {
	return zap.L().With(f.Zap()...)
}
