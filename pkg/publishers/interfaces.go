package publishers

import "context"

// Publisher sends relay events to a downstream sink (SQS, SNS, Pub/Sub, HTTP).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Logger is the subset of the application logger publishers write to.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type nopLogger struct{}

func (nopLogger) DebugObj(string, string, interface{}) {}
func (nopLogger) ErrorObj(string, string, interface{}) {}

func orNop(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
