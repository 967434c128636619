package mqtt

import "context"

// Publisher is implemented by a single Client or a Pool
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(filter string, handler Handler) error
	Unsubscribe(filter string) error
	Close() error
}

var _ Publisher = (*Client)(nil)

var _ Publisher = (*Pool)(nil)
