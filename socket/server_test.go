// Author: momentics <momentics@gmail.com>

package socket

import (
	"context"
	"net"
	"testing"
	"time"
)

// pumpServer runs srv.Wait in a loop on a background goroutine until stop
// is closed, using a short per-pass timeout so the loop notices stop
// promptly.
func pumpServer(t *testing.T, srv *Server, stop <-chan struct{}) {
	t.Helper()
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			srv.Wait(20, true)
		}
	}()
}

// TestLoopbackEcho is scenario S1: a listener accepts one connection, the
// client sends 5 bytes, the server echoes them back, both sides close.
func TestLoopbackEcho(t *testing.T) {
	srv := NewServer()
	stop := make(chan struct{})
	defer close(stop)
	pumpServer(t, srv, stop)

	accepted := make(chan *SocketDispatcher, 1)
	ln, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Accept: func(_, a *SocketDispatcher) { accepted <- a },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(listener): %v", err)
	}
	if err := ln.Bind(ResolvedAddr(net.IPv4(127, 0, 0, 1), 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(4); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	local, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	clientConnected := make(chan struct{}, 1)
	clientRead := make(chan []byte, 1)
	clientClosed := make(chan int, 1)
	client, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Connect: func(c *SocketDispatcher) { clientConnected <- struct{}{} },
		Read: func(c *SocketDispatcher) {
			buf := make([]byte, 16)
			n, err := c.Recv(buf)
			if err != nil {
				return
			}
			clientRead <- buf[:n]
		},
		Close: func(c *SocketDispatcher, errno int) { clientClosed <- errno },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(client): %v", err)
	}
	if err := client.Connect(context.Background(), ResolvedAddr(local.IP, local.Port)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-clientConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed CONNECT")
	}

	var serverSide *SocketDispatcher
	select {
	case serverSide = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never observed ACCEPT")
	}
	serverSide.SetListener(EventFuncs{
		Read: func(s *SocketDispatcher) {
			buf := make([]byte, 16)
			n, err := s.Recv(buf)
			if err != nil {
				return
			}
			s.Send(buf[:n])
		},
	})

	if _, err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	select {
	case got := <-clientRead:
		if string(got) != "hello" {
			t.Fatalf("echoed payload = %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never read the echoed payload")
	}

	serverSide.Close()
	client.Close()
}

// TestUDPSendRecv is scenario S5: two UDP sockets exchange one datagram.
func TestUDPSendRecv(t *testing.T) {
	srv := NewServer()
	stop := make(chan struct{})
	defer close(stop)
	pumpServer(t, srv, stop)

	received := make(chan []byte, 1)
	recvSock, err := srv.CreateAsyncSocket(SockDatagram, EventFuncs{
		Read: func(s *SocketDispatcher) {
			buf := make([]byte, 16)
			n, _, err := s.RecvFrom(buf)
			if err != nil {
				return
			}
			received <- buf[:n]
		},
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(recv): %v", err)
	}
	if err := recvSock.Bind(ResolvedAddr(net.IPv4(127, 0, 0, 1), 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	local, err := recvSock.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	sendSock, err := srv.CreateSocket(SockDatagram)
	if err != nil {
		t.Fatalf("CreateSocket(send): %v", err)
	}
	if _, err := sendSock.SendTo([]byte("ping"), ResolvedAddr(local.IP, local.Port)); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "ping" {
			t.Fatalf("received = %q, want %q", got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
}

// TestRefusedConnect is scenario S2: connecting to a closed port surfaces
// CLOSE with a nonzero errno rather than CONNECT.
func TestRefusedConnect(t *testing.T) {
	srv := NewServer()
	stop := make(chan struct{})
	defer close(stop)
	pumpServer(t, srv, stop)

	// Bind a socket to claim an ephemeral port, then close it immediately
	// so nothing is listening there.
	probe, err := srv.CreateSocket(SockStream)
	if err != nil {
		t.Fatalf("CreateSocket(probe): %v", err)
	}
	if err := probe.Bind(ResolvedAddr(net.IPv4(127, 0, 0, 1), 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	local, err := probe.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}
	probe.Close()

	closed := make(chan int, 1)
	connected := make(chan struct{}, 1)
	client, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Connect: func(*SocketDispatcher) { connected <- struct{}{} },
		Close:   func(_ *SocketDispatcher, errno int) { closed <- errno },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(client): %v", err)
	}
	if err := client.Connect(context.Background(), ResolvedAddr(local.IP, local.Port)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case errno := <-closed:
		if errno == 0 {
			t.Fatal("refused connect signaled CLOSE with errno 0")
		}
	case <-connected:
		t.Fatal("connect to a closed port should not succeed")
	case <-time.After(2 * time.Second):
		t.Fatal("refused connect was never signaled")
	}
}

// fakeResolver resolves every host to 127.0.0.1, for S3 without touching a
// real DNS server.
type fakeResolver struct{}

type fakeResolution struct {
	done chan struct{}
	addr net.Addr
}

func (fakeResolver) Resolve(ctx context.Context, network, address string) AsyncResolution {
	r := &fakeResolution{done: make(chan struct{}), addr: &net.IPAddr{IP: net.IPv4(127, 0, 0, 1)}}
	close(r.done)
	return r
}

func (r *fakeResolution) Done() <-chan struct{}     { return r.done }
func (r *fakeResolution) Result() (net.Addr, error) { return r.addr, nil }
func (r *fakeResolution) Cancel()                   {}

// TestDNSAsyncConnect is scenario S3: Connect on an unresolved address
// completes through the Resolver capability and still reaches CONNECT.
func TestDNSAsyncConnect(t *testing.T) {
	srv := NewServer()
	srv.SetResolver(fakeResolver{})
	stop := make(chan struct{})
	defer close(stop)
	pumpServer(t, srv, stop)

	ln, err := srv.CreateAsyncSocket(SockStream, EventFuncs{})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(listener): %v", err)
	}
	if err := ln.Bind(ResolvedAddr(net.IPv4(127, 0, 0, 1), 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(4); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	local, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	connected := make(chan struct{}, 1)
	client, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Connect: func(*SocketDispatcher) { connected <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(client): %v", err)
	}
	if err := client.Connect(context.Background(), UnresolvedAddr("localhost", local.Port)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("DNS-backed connect never reached CONNECT")
	}
}

// TestGracefulHalfClose covers the peer-close detection of scenario S6:
// IsDescriptorClosed on the accepted socket reports false while the client
// is connected, and true via a non-destructive peek once the client has
// closed its socket.
func TestGracefulHalfClose(t *testing.T) {
	srv := NewServer()
	stop := make(chan struct{})
	defer close(stop)
	pumpServer(t, srv, stop)

	accepted := make(chan *SocketDispatcher, 1)
	ln, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Accept: func(_, a *SocketDispatcher) { accepted <- a },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(listener): %v", err)
	}
	if err := ln.Bind(ResolvedAddr(net.IPv4(127, 0, 0, 1), 0)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(4); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	local, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	clientConnected := make(chan struct{}, 1)
	client, err := srv.CreateAsyncSocket(SockStream, EventFuncs{
		Connect: func(c *SocketDispatcher) { clientConnected <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("CreateAsyncSocket(client): %v", err)
	}
	if err := client.Connect(context.Background(), ResolvedAddr(local.IP, local.Port)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case <-clientConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed CONNECT")
	}

	var serverSide *SocketDispatcher
	select {
	case serverSide = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never observed ACCEPT")
	}

	if serverSide.IsDescriptorClosed() {
		t.Fatal("accepted socket reported closed before any shutdown")
	}

	client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !serverSide.IsDescriptorClosed() {
		if time.Now().After(deadline) {
			t.Fatal("accepted socket never observed the peer half-close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
