package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"

	"chainswarm/internal/identity"
	"chainswarm/internal/swarmerr"
	"chainswarm/internal/wireproto"
)

// ClientEndpoint is a pooled outbound connection to one peer. Concurrent
// requests to the same peer queue on mu rather than racing for streams,
// with each individual request/reply or announcement opened as its own
// QUIC stream on the shared connection.
type ClientEndpoint struct {
	liveURL string
	conn    *quic.Conn

	mu sync.Mutex
}

// LiveURL returns the URL this endpoint successfully dialed.
func (c *ClientEndpoint) LiveURL() string {
	return c.liveURL
}

func (c *ClientEndpoint) openStream(ctx context.Context) (*quic.Stream, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %v", swarmerr.ErrIOError, err)
	}
	return stream, nil
}

// Send writes a one-way announcement (no reply expected), e.g. a
// PeerSetDelta broadcast or a BlockHashes/TxIds announcement.
func (c *ClientEndpoint) Send(ctx context.Context, msgType wireproto.MsgType, payload interface{}, signer *identity.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, err := c.openStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()
	return wireproto.Write(stream, msgType, payload, signer)
}

// Exchange sends a request and returns the single reply envelope, e.g.
// Ping -> Pong or GetBlockHashes -> BlockHashes.
func (c *ClientEndpoint) Exchange(ctx context.Context, msgType wireproto.MsgType, payload interface{}, signer *identity.Identity) (wireproto.Envelope, error) {
	envs, err := c.ExchangeMany(ctx, msgType, payload, signer, 1)
	if err != nil {
		return wireproto.Envelope{}, err
	}
	return envs[0], nil
}

// ExchangeMany sends a request that expects exactly want ordered replies on
// the same stream, e.g. GetBlocks expecting one Block reply per requested
// hash, in order, and likewise for GetTxs.
func (c *ClientEndpoint) ExchangeMany(ctx context.Context, msgType wireproto.MsgType, payload interface{}, signer *identity.Identity, want int) ([]wireproto.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, err := c.openStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if err := wireproto.Write(stream, msgType, payload, signer); err != nil {
		return nil, err
	}
	out := make([]wireproto.Envelope, 0, want)
	for i := 0; i < want; i++ {
		env, err := wireproto.Decode(stream)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Close closes the underlying connection.
func (c *ClientEndpoint) Close() error {
	return c.conn.CloseWithError(0, "closed")
}

// Pool is the swarm's client-endpoint map, keyed by peer address.
type Pool struct {
	insecure    bool
	dialTimeout time.Duration

	mu        sync.Mutex
	endpoints map[identity.Address]*ClientEndpoint
}

// NewPool constructs an empty client-endpoint pool.
func NewPool(dialTimeout time.Duration, insecure bool) *Pool {
	return &Pool{
		insecure:    insecure,
		dialTimeout: dialTimeout,
		endpoints:   make(map[identity.Address]*ClientEndpoint),
	}
}

// Get returns the existing endpoint for addr, if any.
func (p *Pool) Get(addr identity.Address) (*ClientEndpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[addr]
	return ep, ok
}

// Dial walks urls in order, sending a Ping and waiting for any reply within
// the pool's dial timeout. The first URL to answer becomes the endpoint's
// live URL and the endpoint is cached under addr.
// Exhausting every URL fails with ErrUnreachable.
func (p *Pool) Dial(ctx context.Context, addr identity.Address, urls []string, self *identity.Identity) (*ClientEndpoint, error) {
	if ep, ok := p.Get(addr); ok {
		return ep, nil
	}
	if len(urls) == 0 {
		return nil, swarmerr.ErrUnreachable
	}
	tlsConf, err := clientTLSConfig(p.insecure)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swarmerr.ErrIOError, err)
	}

	var lastErr error
	for _, url := range urls {
		dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
		conn, err := quic.DialAddr(dialCtx, url, tlsConf, nil)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		ep := &ClientEndpoint{liveURL: url, conn: conn}
		if _, err := ep.Exchange(dialCtx, wireproto.TypePing, wireproto.PingPayload{}, self); err != nil {
			cancel()
			_ = ep.Close()
			lastErr = err
			continue
		}
		cancel()

		p.mu.Lock()
		p.endpoints[addr] = ep
		p.mu.Unlock()
		return ep, nil
	}
	log.WithError(lastErr).WithField("peer", addr.String()).Debug("all urls unreachable")
	return nil, swarmerr.ErrUnreachable
}

// Remove closes and forgets the endpoint for addr, if any.
func (p *Pool) Remove(addr identity.Address) {
	p.mu.Lock()
	ep, ok := p.endpoints[addr]
	delete(p.endpoints, addr)
	p.mu.Unlock()
	if ok {
		_ = ep.Close()
	}
}

// Count returns the number of live client endpoints.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// CloseAll closes and forgets every endpoint.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	endpoints := p.endpoints
	p.endpoints = make(map[identity.Address]*ClientEndpoint)
	p.mu.Unlock()
	for _, ep := range endpoints {
		_ = ep.Close()
	}
}
