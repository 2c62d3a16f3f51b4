// Package transport manages authenticated QUIC connections between nodes
// and dispatches inbound streams by their kind byte.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/attestd/internal/crypto/ed25519"
	"github.com/eigerco/attestd/pkg/log"
	"github.com/eigerco/attestd/pkg/network/cert"
	"github.com/eigerco/attestd/pkg/network/protocol"
)

// MaxIdleTimeout defines the maximum duration a connection can be idle before timing out
const MaxIdleTimeout = 30 * time.Minute

type Config struct {
	PrivateKey ed25519.PrivateKey
	TLSCert    *tls.Certificate
	ListenAddr string
	// ChainHash is the 8-nibble chain identifier negotiated through ALPN.
	ChainHash string
	Registry  *protocol.Registry
}

// Transport keeps at most one connection per peer key.
type Transport struct {
	config   Config
	listener *quic.Listener
	mu       sync.RWMutex
	conns    map[string]*Conn
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewTransport(config Config) (*Transport, error) {
	if config.TLSCert == nil {
		return nil, errors.New("TLS certificate required")
	}
	if config.Registry == nil {
		return nil, errors.New("stream registry required")
	}
	if _, err := protocol.ParseProtocolID(protocol.NewProtocolID(config.ChainHash).String()); err != nil {
		return nil, err
	}
	if _, err := cert.Validate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return &Transport{
		config: config,
		conns:  make(map[string]*Conn),
	}, nil
}

func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*t.config.TLSCert},
		NextProtos:         []string{protocol.NewProtocolID(t.config.ChainHash).String()},
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
			}
			if _, err := cert.Validate(cs.PeerCertificates[0]); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			return protocol.ValidateNegotiated(cs.NegotiatedProtocol, t.config.ChainHash)
		},
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: MaxIdleTimeout, KeepAlivePeriod: 15 * time.Second}
}

// Start begins accepting connections.
func (t *Transport) Start() error {
	listener, err := quic.ListenAddr(t.config.ListenAddr, t.tlsConfig(), quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.listener = listener

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acceptLoop()
	}()
	log.Network.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the listening address once started.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Stop closes every connection and the listener, and waits for the
// connection goroutines to finish.
func (t *Transport) Stop() error {
	if t.cancel == nil {
		return ErrNotStarted
	}
	t.cancel()

	t.mu.Lock()
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("failed to close connection")
		}
	}
	t.conns = make(map[string]*Conn)
	t.mu.Unlock()

	err := t.listener.Close()
	t.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

// Connect dials addr and registers the resulting connection.
func (t *Transport) Connect(ctx context.Context, addr string) (*Conn, error) {
	if t.ctx == nil {
		return nil, ErrNotStarted
	}
	qConn, err := quic.DialAddr(ctx, addr, t.tlsConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	return t.handleConnection(qConn)
}

func (t *Transport) Connections() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			log.Network.Warn().Err(err).Msg("failed to accept connection")
			continue
		}
		go func() {
			if _, err := t.handleConnection(qConn); err != nil {
				log.Network.Debug().Err(err).Msg("rejected inbound connection")
			}
		}()
	}
}

func (t *Transport) handleConnection(qConn quic.Connection) (*Conn, error) {
	peerCerts := qConn.ConnectionState().TLS.PeerCertificates
	var peerKey ed25519.PublicKey
	var err error
	if len(peerCerts) == 0 {
		err = ErrInvalidCertificate
	} else {
		peerKey, err = cert.Validate(peerCerts[0])
	}
	if err != nil {
		_ = qConn.CloseWithError(0, ErrInvalidCertificate.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	conn := newConn(t.ctx, qConn, peerKey)

	t.mu.Lock()
	if existing, ok := t.conns[string(peerKey)]; ok {
		_ = existing.Close()
	}
	t.conns[string(peerKey)] = conn
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.serve(conn)
	}()

	log.Network.Info().Str("peer", qConn.RemoteAddr().String()).Msg("peer connected")
	return conn, nil
}

// serve accepts inbound streams until the connection ends.
func (t *Transport) serve(conn *Conn) {
	defer t.remove(conn)
	for {
		stream, err := conn.qConn.AcceptStream(conn.ctx)
		if err != nil {
			return
		}
		go t.dispatch(conn, stream)
	}
}

func (t *Transport) dispatch(conn *Conn, stream quic.Stream) {
	defer stream.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(conn.ctx, StreamTimeout)
	defer cancel()

	var kind [1]byte
	if _, err := io.ReadFull(stream, kind[:]); err != nil {
		log.Network.Debug().Err(err).Msg("failed to read stream kind")
		return
	}
	handler, err := t.config.Registry.GetHandler(protocol.StreamKind(kind[0]))
	if err != nil {
		log.Network.Debug().Err(err).Msg("unknown stream kind")
		stream.CancelRead(0)
		return
	}
	if err := handler.HandleStream(ctx, stream, conn.peerKey); err != nil {
		log.Network.Debug().Err(err).Uint8("kind", kind[0]).Msg("stream handler failed")
	}
}

func (t *Transport) remove(conn *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[string(conn.peerKey)] == conn {
		delete(t.conns, string(conn.peerKey))
	}
}
