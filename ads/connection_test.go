package ads

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"
)

// fakeServer is a minimal AMS/TCP listener used to drive Connection against a
// real socket without a PLC. The build function passed to acceptAndRespond
// controls how it answers each request frame it receives.
type fakeServer struct {
	ln net.Listener
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeServer{ln: ln}
}

func (s *fakeServer) addr() (string, uint16) {
	tcpAddr := s.ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), uint16(tcpAddr.Port)
}

func (s *fakeServer) close() { s.ln.Close() }

// acceptAndRespond accepts a single connection and, for every request frame
// it reads, writes back a response built by build(hdr). A nil build skips
// responding to that invocation (used to simulate a stall for timeout tests).
func (s *fakeServer) acceptAndRespond(t *testing.T, build func(hdr amsHeader) []byte) net.Conn {
	t.Helper()
	conn, err := s.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	go func() {
		buf := make([]byte, 4096)
		var acc []byte
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			acc = append(acc, buf[:n]...)
			remaining, packets, ferr := decodeFrames(acc)
			if ferr != nil {
				return
			}
			acc = remaining
			for _, pkt := range packets {
				if build == nil {
					continue
				}
				resp := build(pkt.Header)
				if resp != nil {
					conn.Write(resp)
				}
			}
		}
	}()
	return conn
}

func respHeader(req amsHeader, errorCode uint32) amsHeader {
	return amsHeader{
		TargetNetId: req.SourceNetId,
		TargetPort:  req.SourcePort,
		SourceNetId: req.TargetNetId,
		SourcePort:  req.TargetPort,
		CommandId:   req.CommandId,
		StateFlags:  StateFlagRequest | 0x0001,
		ErrorCode:   errorCode,
		InvokeId:    req.InvokeId,
	}
}

func dialOpts(host string, port uint16) ConnectionOptions {
	return ConnectionOptions{
		Host:          host,
		TCPPort:       port,
		TargetAmsPort: 851,
		TargetNetId:   AmsNetId{1, 1, 1, 1, 1, 1},
		SourceNetId:   AmsNetId{2, 2, 2, 2, 2, 2},
		RequestTimeout: 500 * time.Millisecond,
	}
}

func TestConnectionRequestSuccess(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	host, port := srv.addr()

	conn, err := NewConnection(dialOpts(host, port))
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.acceptAndRespond(t, func(hdr amsHeader) []byte {
			payload := make([]byte, 4)
			binary.LittleEndian.PutUint32(payload, 42)
			frame, _ := encodeFrame(respHeader(hdr, 0), payload)
			return frame
		})
		close(done)
	}()

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	data, err := conn.Request(CmdReadDeviceInfo, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if binary.LittleEndian.Uint32(data) != 42 {
		t.Errorf("response data = %v, want 42", data)
	}
	<-done
}

func TestConnectionRequestDeviceError(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	host, port := srv.addr()

	conn, err := NewConnection(dialOpts(host, port))
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	go srv.acceptAndRespond(t, func(hdr amsHeader) []byte {
		frame, _ := encodeFrame(respHeader(hdr, ErrDeviceSymbolNotFound), nil)
		return frame
	})

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Request(CmdRead, nil)
	var adsErr *AdsError
	if !errors.As(err, &adsErr) || adsErr.Code != ErrDeviceSymbolNotFound {
		t.Errorf("expected AdsError(%d), got %v", ErrDeviceSymbolNotFound, err)
	}
}

func TestConnectionRequestTimeout(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	host, port := srv.addr()

	opts := dialOpts(host, port)
	opts.RequestTimeout = 50 * time.Millisecond
	conn, err := NewConnection(opts)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	go srv.acceptAndRespond(t, nil) // server accepts but never answers

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Request(CmdRead, nil)
	if err != ErrRequestTimeout {
		t.Errorf("expected ErrRequestTimeout, got %v", err)
	}
}

func TestConnectionRequestBeforeConnectFails(t *testing.T) {
	conn, err := NewConnection(dialOpts("127.0.0.1", 48000))
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	if _, err := conn.Request(CmdRead, nil); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionApplyDefaultsRejectsMissingHost(t *testing.T) {
	_, err := NewConnection(ConnectionOptions{TargetAmsPort: 851})
	if err == nil {
		t.Error("expected error for missing host")
	}
}

func TestConnectionApplyDefaultsRejectsMissingAmsPort(t *testing.T) {
	_, err := NewConnection(ConnectionOptions{Host: "127.0.0.1"})
	if err == nil {
		t.Error("expected error for missing target ams port")
	}
}

func TestConnectionCloseFailsPendingRequests(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	host, port := srv.addr()

	opts := dialOpts(host, port)
	opts.RequestTimeout = 5 * time.Second
	conn, err := NewConnection(opts)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	go srv.acceptAndRespond(t, nil)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := conn.Request(CmdRead, nil)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case err := <-result:
		if err == nil {
			t.Error("expected pending request to fail after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Request did not return after Close")
	}
}

func TestConnectionEventsEmitted(t *testing.T) {
	srv := newFakeServer(t)
	defer srv.close()
	host, port := srv.addr()

	conn, err := NewConnection(dialOpts(host, port))
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	events := make(chan Event, 8)
	conn.OnEvent(func(ev Event) { events <- ev })

	go srv.acceptAndRespond(t, nil)
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventConnected {
			t.Errorf("first event = %v, want EventConnected", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventConnected")
	}

	conn.Close()
	select {
	case ev := <-events:
		if ev.Type != EventClose {
			t.Errorf("event after Close = %v, want EventClose", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventClose")
	}
}

func TestConnectionNextInvokeIdWraps(t *testing.T) {
	conn := &Connection{invokeId: 0xFFFFFFFF}
	if got := conn.nextInvokeId(); got != 1 {
		t.Errorf("wrapped invoke id = %d, want 1", got)
	}
}
