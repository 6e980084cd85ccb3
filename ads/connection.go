package ads

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// EventType enumerates the notifications a Connection emits to its owner.
// Deliberately per-instance: each Connection/Client owns its own listener
// set, there is no process-wide event bus.
type EventType int

const (
	EventConnected EventType = iota
	EventClose
	EventReconnect
	EventError
	EventNotification
)

func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventClose:
		return "close"
	case EventReconnect:
		return "reconnect"
	case EventError:
		return "error"
	case EventNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Event is delivered to a Connection's listeners.
type Event struct {
	Type     EventType
	HadError bool
	Err      error
	Packet   *Packet
}

// Logger is the small interface the connection and client use for debug and
// error traces. Callers inject a concrete sink (e.g. logging.DebugLogger);
// a nil Logger is valid and disables tracing.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ConnectionOptions configures a Connection.
type ConnectionOptions struct {
	Host                string
	TCPPort             uint16
	TargetNetId         AmsNetId
	TargetAmsPort       uint16
	SourceNetId         AmsNetId
	SourceAmsPort       uint16
	Reconnect           bool
	ReconnectInterval   time.Duration
	RequestTimeout      time.Duration
	Logger              Logger
}

func (o *ConnectionOptions) applyDefaults() error {
	if o.Host == "" {
		return fmt.Errorf("%w: target.host is required", ErrConfigInvalid)
	}
	if o.TCPPort == 0 {
		o.TCPPort = DefaultTCPPort
	}
	if o.TargetAmsPort == 0 {
		return fmt.Errorf("%w: target.amsPort is required", ErrConfigInvalid)
	}
	if o.TargetNetId.IsZero() {
		netId, err := AmsNetIdFromIP(o.Host)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		o.TargetNetId = netId
	}
	if o.SourceAmsPort == 0 {
		o.SourceAmsPort = 800
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = 5000 * time.Millisecond
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 3 * time.Second
	}
	return nil
}

// outstandingRequest is a one-shot completion sink for a request in flight,
// keyed by invoke ID in Connection.pending.
type outstandingRequest struct {
	done chan Packet
	fail chan error
}

// Connection owns one TCP socket, the 16-byte routing prefix built from
// target/source NetID+port, the monotonic invoke-ID counter, and the
// outstanding-request registry. It is the sole synchronization point for
// socket writes and request correlation; the Client façade mediates all
// higher-level access to it.
type Connection struct {
	opts ConnectionOptions
	id   string

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	closing   bool

	invokeId uint32

	pendingMu sync.Mutex
	pending   map[uint32]*outstandingRequest

	listenersMu sync.Mutex
	listeners   []func(Event)

	readBuf []byte
}

// NewConnection builds a Connection from options, applying documented
// defaults and rejecting invalid configuration eagerly.
func NewConnection(opts ConnectionOptions) (*Connection, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	return &Connection{
		opts:    opts,
		id:      xid.New().String(),
		pending: make(map[uint32]*outstandingRequest),
	}, nil
}

// OnEvent registers a listener invoked for every emitted Event. Listeners
// are called synchronously from the connection's read loop or request path;
// callers that need to do real work should hand off to their own goroutine.
func (c *Connection) OnEvent(fn func(Event)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Connection) emit(ev Event) {
	c.listenersMu.Lock()
	listeners := append([]func(Event){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Connect dials the target, rebuilds the routing prefix, and starts the
// read loop. If opts.Reconnect is set, transport failure after a
// successful connect triggers the backoff-driven reconnect loop rather than
// returning an error to the caller.
func (c *Connection) Connect() error {
	if err := c.dial(); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

func (c *Connection) dial() error {
	addr := fmt.Sprintf("%s:%d", c.opts.Host, c.opts.TCPPort)
	conn, err := net.DialTimeout("tcp", addr, c.opts.RequestTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetNoDelay(true)
	}

	if c.opts.SourceNetId.IsZero() {
		local := conn.LocalAddr().(*net.TCPAddr).IP.String()
		netId, nerr := AmsNetIdFromIP(local)
		if nerr == nil {
			c.opts.SourceNetId = netId
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logf("connected to %s (target %s:%d, source %s:%d)", addr,
		c.opts.TargetNetId, c.opts.TargetAmsPort, c.opts.SourceNetId, c.opts.SourceAmsPort)
	c.emit(Event{Type: EventConnected})
	return nil
}

// IsConnected reports whether the socket is currently live.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// nextInvokeId returns the next invoke ID, wrapping from 2^32-1 back to 1
// (never 0, which is reserved to mean "no request").
func (c *Connection) nextInvokeId() uint32 {
	for {
		old := atomic.LoadUint32(&c.invokeId)
		next := old + 1
		if next == 0 {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&c.invokeId, old, next) {
			return next
		}
	}
}

// Request issues one ADS command and blocks until a matching response
// arrives, the per-request timeout (default 3s) elapses, or the session
// closes.
func (c *Connection) Request(cmd Command, payload []byte) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	invokeId := c.nextInvokeId()
	req := &outstandingRequest{done: make(chan Packet, 1), fail: make(chan error, 1)}

	c.pendingMu.Lock()
	if _, exists := c.pending[invokeId]; exists {
		c.pendingMu.Unlock()
		return nil, ErrDuplicateInvokeId
	}
	c.pending[invokeId] = req
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, invokeId)
		c.pendingMu.Unlock()
	}()

	hdr := amsHeader{
		TargetNetId: c.opts.TargetNetId,
		TargetPort:  c.opts.TargetAmsPort,
		SourceNetId: c.opts.SourceNetId,
		SourcePort:  c.opts.SourceAmsPort,
		CommandId:   cmd,
		StateFlags:  StateFlagRequest,
		InvokeId:    invokeId,
	}
	frame, err := encodeFrame(hdr, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	requestsSent.WithLabelValues(cmd.String()).Inc()
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	bytesWritten.Add(float64(len(frame)))

	select {
	case pkt := <-req.done:
		if pkt.Header.ErrorCode != 0 {
			adsErrors.WithLabelValues(fmt.Sprintf("0x%04X", pkt.Header.ErrorCode)).Inc()
			return nil, &AdsError{Code: pkt.Header.ErrorCode}
		}
		return pkt.Data, nil
	case err := <-req.fail:
		return nil, err
	case <-time.After(c.opts.RequestTimeout):
		requestsTimedOut.WithLabelValues(cmd.String()).Inc()
		return nil, ErrRequestTimeout
	}
}

// readLoop reassembles frames from the socket and dispatches each one:
// responses resolve their outstanding request, DeviceNotification frames are
// forwarded as an EventNotification for the Client's notification registry
// to demultiplex.
func (c *Connection) readLoop() {
	buf := make([]byte, 4096)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		bytesRead.Add(float64(n))
		c.readBuf = append(c.readBuf, buf[:n]...)

		remaining, packets, ferr := decodeFrames(c.readBuf)
		if ferr != nil {
			c.emit(Event{Type: EventError, Err: ferr})
			c.readBuf = nil
			continue
		}
		c.readBuf = remaining

		for i := range packets {
			c.dispatch(packets[i])
		}
	}
}

func (c *Connection) dispatch(pkt Packet) {
	if pkt.Header.CommandId == CmdDeviceNotification {
		c.emit(Event{Type: EventNotification, Packet: &pkt})
		return
	}

	c.pendingMu.Lock()
	req, ok := c.pending[pkt.Header.InvokeId]
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case req.done <- pkt:
	default:
	}
}

func (c *Connection) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	c.conn = nil
	closing := c.closing
	c.mu.Unlock()

	c.failAllPending(fmt.Errorf("%w: %v", ErrDisconnected, err))
	c.emit(Event{Type: EventClose, HadError: err != nil})

	if closing || !c.opts.Reconnect {
		return
	}

	go c.reconnectLoop()
}

func (c *Connection) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*outstandingRequest)
	c.pendingMu.Unlock()

	for _, req := range pending {
		select {
		case req.fail <- err:
		default:
		}
	}
}

func (c *Connection) reconnectLoop() {
	time.Sleep(c.opts.ReconnectInterval)
	reconnectAttempts.Inc()
	c.emit(Event{Type: EventReconnect})

	if err := c.dial(); err != nil {
		c.emit(Event{Type: EventError, Err: err})
		go c.reconnectLoop()
		return
	}
	go c.readLoop()
}

// Close tears down the socket and stops any pending reconnect attempt.
// Outstanding requests fail with a disconnect error.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	c.failAllPending(ErrDisconnected)
	c.emit(Event{Type: EventClose, HadError: false})

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Connection) logf(format string, args ...any) {
	if c.opts.Logger == nil {
		return
	}
	c.opts.Logger.Debugf("["+c.id+"] "+format, args...)
}

// localRoutingPrefix renders the 16-byte routing prefix for display/debug
// purposes: target NetID+port, source NetID+port.
func (c *Connection) localRoutingPrefix() string {
	return strings.Join([]string{
		c.opts.TargetNetId.String(), fmt.Sprint(c.opts.TargetAmsPort),
		c.opts.SourceNetId.String(), fmt.Sprint(c.opts.SourceAmsPort),
	}, "/")
}
