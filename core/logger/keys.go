package logger

// keyOrder leads every line; remaining keys follow sorted.
var keyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"session", "flow", "step", "action", "intent",
	"amount", "method", "currency", "bucket", "tx_id",
	"lane", "cb_key", "payload",
	"mode", "listen", "public_url", "db", "host", "port",
	"duration_ms", "elapsed_ms", "attempt", "attempts",
	"err", "err_code", "cause",
}
