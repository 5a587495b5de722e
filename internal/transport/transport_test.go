package transport

import (
	"context"
	"testing"
	"time"

	"chainswarm/internal/identity"
	"chainswarm/internal/wireproto"
)

func startEchoServer(t *testing.T, serverID *identity.Identity) (*Server, func()) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-srv.Requests():
				switch req.Envelope.Type {
				case wireproto.TypePing:
					_ = req.Reply(wireproto.TypePong, wireproto.PongPayload{}, serverID)
					_ = req.Close()
				case wireproto.TypeGetBlocks:
					var p wireproto.GetBlocksPayload
					_ = wireproto.Unmarshal(req.Envelope, &p)
					for range p.Hashes {
						_ = req.Reply(wireproto.TypeBlock, wireproto.BlockPayload{Bytes: "aa"}, serverID)
					}
					_ = req.Close()
				default:
					_ = req.Close()
				}
			}
		}
	}()

	return srv, func() {
		cancel()
		_ = srv.Close()
	}
}

func TestClientEndpointPingPong(t *testing.T) {
	serverID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	srv, stop := startEchoServer(t, serverID)
	defer stop()

	clientID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	pool := NewPool(2*time.Second, true)
	peerAddr := serverID.Address()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ep, err := pool.Dial(ctx, peerAddr, []string{srv.Addr()}, clientID)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if ep.LiveURL() != srv.Addr() {
		t.Fatalf("LiveURL() = %q, want %q", ep.LiveURL(), srv.Addr())
	}
	if pool.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", pool.Count())
	}

	env, err := ep.Exchange(ctx, wireproto.TypePing, wireproto.PingPayload{}, clientID)
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}
	if env.Type != wireproto.TypePong {
		t.Fatalf("reply type = %v, want Pong", env.Type)
	}
	if env.Identity != serverID.Address() {
		t.Fatalf("reply identity = %v, want %v", env.Identity, serverID.Address())
	}
}

func TestClientEndpointExchangeMany(t *testing.T) {
	serverID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	srv, stop := startEchoServer(t, serverID)
	defer stop()

	clientID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	pool := NewPool(2*time.Second, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ep, err := pool.Dial(ctx, serverID.Address(), []string{srv.Addr()}, clientID)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	req := wireproto.GetBlocksPayload{Hashes: []string{wireproto.Hash{1}.Hex(), wireproto.Hash{2}.Hex(), wireproto.Hash{3}.Hex()}}
	envs, err := ep.ExchangeMany(ctx, wireproto.TypeGetBlocks, req, clientID, 3)
	if err != nil {
		t.Fatalf("ExchangeMany() error: %v", err)
	}
	if len(envs) != 3 {
		t.Fatalf("len(envs) = %d, want 3", len(envs))
	}
	for _, env := range envs {
		if env.Type != wireproto.TypeBlock {
			t.Fatalf("reply type = %v, want Block", env.Type)
		}
	}
}

func TestPoolDialUnreachable(t *testing.T) {
	clientID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	pool := NewPool(200*time.Millisecond, true)
	peerAddr := clientID.Address()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := pool.Dial(ctx, peerAddr, []string{"127.0.0.1:1"}, clientID); err == nil {
		t.Fatal("expected Dial() to fail against an unreachable address")
	}
}

func TestPoolRemoveAndCloseAll(t *testing.T) {
	serverID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	srv, stop := startEchoServer(t, serverID)
	defer stop()

	clientID, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New() error: %v", err)
	}
	pool := NewPool(2*time.Second, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := pool.Dial(ctx, serverID.Address(), []string{srv.Addr()}, clientID); err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	pool.Remove(serverID.Address())
	if pool.Count() != 0 {
		t.Fatalf("Count() after Remove = %d, want 0", pool.Count())
	}

	if _, err := pool.Dial(ctx, serverID.Address(), []string{srv.Addr()}, clientID); err != nil {
		t.Fatalf("Dial() after Remove error: %v", err)
	}
	pool.CloseAll()
	if pool.Count() != 0 {
		t.Fatalf("Count() after CloseAll = %d, want 0", pool.Count())
	}
}
