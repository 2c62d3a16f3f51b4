// Package network relays candidate results between nodes over QUIC.
package network

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/pkg/log"
	"github.com/eigerco/attestd/pkg/network/protocol"
	"github.com/eigerco/attestd/pkg/network/transport"
)

// Handler receives an inbound broadcast payload and the key of the peer that sent it.
type Handler func(ctx context.Context, payload []byte, from ed25519.PublicKey)

// Gossip sends every broadcast payload on a fresh stream to each connected peer.
type Gossip struct {
	transport *transport.Transport
	kind      protocol.StreamKind
}

// NewGossip registers handler for kind on registry, which must be the
// registry the transport was created with.
func NewGossip(tr *transport.Transport, registry *protocol.Registry, kind protocol.StreamKind, handler Handler) *Gossip {
	registry.RegisterHandler(kind, protocol.StreamHandlerFunc(
		func(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
			payload, err := protocol.ReadMessage(ctx, stream)
			if err != nil {
				return err
			}
			handler(ctx, payload, peerKey)
			return nil
		}))
	return &Gossip{transport: tr, kind: kind}
}

// Broadcast sends payload to every connected peer except exclude and returns
// the number of peers it reached.
func (g *Gossip) Broadcast(ctx context.Context, payload []byte, exclude ed25519.PublicKey) int {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for _, conn := range g.transport.Connections() {
		if exclude != nil && exclude.Equal(conn.PeerKey()) {
			continue
		}
		wg.Add(1)
		go func(conn *transport.Conn) {
			defer wg.Done()
			if err := send(ctx, conn, g.kind, payload); err != nil {
				log.Network.Debug().Err(err).Str("peer", conn.RemoteAddr()).Msg("broadcast failed")
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		}(conn)
	}
	wg.Wait()
	return sent
}

func send(ctx context.Context, conn *transport.Conn, kind protocol.StreamKind, payload []byte) error {
	stream, err := conn.OpenStream(ctx, kind)
	if err != nil {
		return err
	}
	if err := protocol.WriteMessage(ctx, stream, payload); err != nil {
		stream.CancelWrite(0)
		return err
	}
	return stream.Close()
}

// ConnectPeers dials every address, logging the ones that fail.
func (g *Gossip) ConnectPeers(ctx context.Context, addrs []string) int {
	connected := 0
	for _, addr := range addrs {
		if _, err := g.transport.Connect(ctx, addr); err != nil {
			log.Network.Warn().Err(err).Str("addr", addr).Msg("failed to connect to peer")
			continue
		}
		connected++
	}
	return connected
}
