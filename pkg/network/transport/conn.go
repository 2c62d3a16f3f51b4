package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/pkg/network/protocol"
)

// StreamTimeout bounds opening a stream and handling an inbound one.
const StreamTimeout = 5 * time.Second

// Conn is a QUIC connection with an authenticated peer.
type Conn struct {
	qConn   quic.Connection
	peerKey ed25519.PublicKey
	ctx     context.Context
	cancel  context.CancelFunc
}

func newConn(parent context.Context, qConn quic.Connection, peerKey ed25519.PublicKey) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{qConn: qConn, peerKey: peerKey, ctx: ctx, cancel: cancel}
}

// OpenStream opens a bidirectional stream and writes its kind byte.
func (c *Conn) OpenStream(ctx context.Context, kind protocol.StreamKind) (quic.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()

	stream, err := c.qConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	if _, err := stream.Write([]byte{byte(kind)}); err != nil {
		stream.CancelWrite(0)
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

func (c *Conn) RemoteAddr() string {
	return c.qConn.RemoteAddr().String()
}

// Close closes the connection and cancels all associated streams.
func (c *Conn) Close() error {
	c.cancel()
	return c.qConn.CloseWithError(0, "")
}

func (c *Conn) Context() context.Context {
	return c.ctx
}
