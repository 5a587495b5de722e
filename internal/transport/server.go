// Package transport implements a two-socket model over QUIC: a single
// bound server endpoint that accepts requests from any peer, and a pool of
// client endpoints keyed by peer address. It is grounded on
// internal/network/quic.go's accept-loop shape (bind, Accept connections,
// AcceptStream per connection, handle each stream independently) and
// internal/network/client_pool.go's pooled-connection-by-address map.
package transport

import (
	"context"
	"sync"

	quic "github.com/quic-go/quic-go"

	"chainswarm/internal/identity"
	"chainswarm/internal/logging"
	"chainswarm/internal/wireproto"
)

var log = logging.For("transport")

// Request is one decoded inbound message, still bound to the stream it
// arrived on so a handler can reply without a separate routing lookup —
// the QUIC stream itself doubles as the routing context.
type Request struct {
	Envelope wireproto.Envelope

	stream *quic.Stream
}

// Reply writes a single response envelope back on the request's stream.
func (r *Request) Reply(msgType wireproto.MsgType, payload interface{}, signer *identity.Identity) error {
	return wireproto.Write(r.stream, msgType, payload, signer)
}

// Close releases the request's stream. Callers must call Close exactly
// once they are done replying (including when sending no reply at all,
// e.g. after applying a PeerSetDelta).
func (r *Request) Close() error {
	return r.stream.Close()
}

// Server is the bound listen endpoint every peer sends requests and
// announcements to.
type Server struct {
	listener *quic.Listener
	requests chan *Request

	mu     sync.Mutex
	closed bool
}

// NewServer binds a QUIC listener at listenAddr.
func NewServer(listenAddr string, insecure bool) (*Server, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	_ = insecure // server side always presents its dev cert; insecure only affects dialers
	listener, err := quic.ListenAddr(listenAddr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		requests: make(chan *Request, 128),
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Each accepted stream is decoded independently and handed to
// Requests() for the dispatcher to consume.
func (s *Server) Serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("accept error")
			return
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.serveStream(stream)
	}
}

func (s *Server) serveStream(stream *quic.Stream) {
	env, err := wireproto.Decode(stream)
	if err != nil {
		log.WithError(err).Debug("dropping unparseable message")
		_ = stream.Close()
		return
	}
	req := &Request{Envelope: env, stream: stream}
	select {
	case s.requests <- req:
	default:
		log.Warn("request queue full, dropping message")
		_ = stream.Close()
	}
}

// Requests returns the channel the dispatcher polls with a bounded
// timeout, e.g.:
//
//	select {
//	case req := <-srv.Requests():
//	    handle(req)
//	case <-time.After(100 * time.Millisecond):
//	}
func (s *Server) Requests() <-chan *Request {
	return s.requests
}

// Close shuts down the listener. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}
