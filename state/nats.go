package state

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes each cell on <subject>.<cell>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
	}
}

func (p *NATSPublisher) Subject(cell string) string {
	return fmt.Sprintf("%s.%s", p.subject, cell)
}

func (p *NATSPublisher) Publish(cell string, data []byte) error {
	err := p.conn.Publish(p.Subject(cell), data)
	if err != nil {
		return fmt.Errorf("failed to publish to nats subject %s - %s", p.Subject(cell), err.Error())
	}
	return nil
}
