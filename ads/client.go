package ads

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DeviceInfo is the decoded ReadDeviceInfo response.
type DeviceInfo struct {
	MajorVersion uint8
	MinorVersion uint8
	BuildVersion uint16
	DeviceName   string
}

func (d *DeviceInfo) String() string {
	if d == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s v%d.%d.%d", d.DeviceName, d.MajorVersion, d.MinorVersion, d.BuildVersion)
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger injects a debug/error sink. Without one, the client is silent.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithReconnect overrides the reconnect option (default true) and interval
// (default 5000ms).
func WithReconnect(enabled bool, interval time.Duration) Option {
	return func(c *Client) {
		c.reconnect = enabled
		if interval > 0 {
			c.reconnectInterval = interval
		}
	}
}

// WithPreload controls whether Connect preloads the symbol and data-type
// tables (both default true).
func WithPreload(symbols, dataTypes bool) Option {
	return func(c *Client) {
		c.loadSymbols = symbols
		c.loadDataTypes = dataTypes
	}
}

// WithSourceAddress overrides the source NetID/AMS port the client presents
// to the target; by default the NetID is fabricated from the local IP and
// the port defaults to 800.
func WithSourceAddress(netId AmsNetId, amsPort uint16) Option {
	return func(c *Client) {
		c.sourceNetId = netId
		c.sourceAmsPort = amsPort
	}
}

// Client is the caller-visible façade: connect, read_tag, write_tag,
// monitor_tag, stop_monitor_tag, close, plus device info/state. It owns the
// symbol dictionary, the data-type dictionary, the upload-info cache, and
// the notification registry, and mediates all access to its Connection.
type Client struct {
	host          string
	targetNetId   AmsNetId
	targetAmsPort uint16
	sourceNetId   AmsNetId
	sourceAmsPort uint16
	reconnect     bool
	reconnectInterval time.Duration
	loadSymbols   bool
	loadDataTypes bool
	logger        Logger

	conn *Connection

	mu           sync.RWMutex
	symbols      map[string]*Symbol
	dataTypes    map[string]*DataType
	uploadInfo   UploadInfo
	uploadInfoAt time.Time
	deviceInfo   *DeviceInfo

	notifications *notificationRegistry

	listenersMu sync.Mutex
	listeners   []func(Event)
}

// NewClient constructs a Client for the given target host and AMS port.
// Defaults: target TCP port 48898, reconnect enabled at a 5000ms interval,
// source AMS port 800, and both symbol and data-type preload enabled.
func NewClient(host string, targetNetId AmsNetId, targetAmsPort uint16, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: target.host is required", ErrConfigInvalid)
	}
	if targetAmsPort == 0 {
		return nil, fmt.Errorf("%w: target.amsPort is required", ErrConfigInvalid)
	}

	c := &Client{
		host:              host,
		targetNetId:       targetNetId,
		targetAmsPort:     targetAmsPort,
		sourceAmsPort:     800,
		reconnect:         true,
		reconnectInterval: 5000 * time.Millisecond,
		loadSymbols:       true,
		loadDataTypes:     true,
		symbols:           make(map[string]*Symbol),
		dataTypes:         make(map[string]*DataType),
		notifications:     newNotificationRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnEvent registers a listener for connected/close/reconnect/error events.
// Per the design note on global event emission, each Client owns its own
// listener set.
func (c *Client) OnEvent(fn func(Event)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) emit(ev Event) {
	c.listenersMu.Lock()
	listeners := append([]func(Event){}, c.listeners...)
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Connect opens the connection, waits for the first connected event,
// optionally preloads the symbol and data-type tables, and wires reconnect
// handling (table refresh and notification re-subscription).
func (c *Client) Connect() error {
	conn, err := NewConnection(ConnectionOptions{
		Host:              c.host,
		TargetNetId:       c.targetNetId,
		TargetAmsPort:     c.targetAmsPort,
		SourceNetId:       c.sourceNetId,
		SourceAmsPort:     c.sourceAmsPort,
		Reconnect:         c.reconnect,
		ReconnectInterval: c.reconnectInterval,
		Logger:            c.logger,
	})
	if err != nil {
		return err
	}
	c.conn = conn

	conn.OnEvent(func(ev Event) {
		switch ev.Type {
		case EventConnected:
			go c.handleConnected()
		case EventNotification:
			c.demux(ev.Packet)
			return
		}
		c.emit(ev)
	})

	if err := conn.Connect(); err != nil {
		return err
	}

	if c.loadSymbols {
		if _, err := c.loadSymbolTable(); err != nil {
			return err
		}
	}
	if c.loadDataTypes {
		if _, err := c.loadDataTypeTable(); err != nil {
			return err
		}
	}
	return nil
}

// handleConnected runs on every (re)connect, including the first. On a
// reconnect it refreshes the tables (a running PLC program may have
// changed) and re-subscribes every active notification.
func (c *Client) handleConnected() {
	c.mu.Lock()
	hadSymbols := len(c.symbols) > 0
	c.mu.Unlock()
	if hadSymbols {
		if c.loadSymbols {
			c.loadSymbolTable()
		}
		if c.loadDataTypes {
			c.loadDataTypeTable()
		}
		c.resubscribeAll()
	}
}

// IsConnected reports whether the transport is currently live.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close best-effort deletes every notification, detaches listeners, and
// closes the socket.
func (c *Client) Close() error {
	for _, h := range c.notifications.all() {
		c.conn.Request(CmdDeleteDeviceNotify, encodeDeleteNotificationPayload(h.serverHandle))
		c.notifications.remove(h.tagName)
	}
	c.listenersMu.Lock()
	c.listeners = nil
	c.listenersMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// GetDeviceInfo issues ReadDeviceInfo, caching the result.
func (c *Client) GetDeviceInfo() (*DeviceInfo, error) {
	c.mu.RLock()
	if c.deviceInfo != nil {
		info := c.deviceInfo
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	data, err := c.conn.Request(CmdReadDeviceInfo, nil)
	if err != nil {
		return nil, err
	}
	if len(data) < 4+4+16 {
		return nil, fmt.Errorf("%w: ReadDeviceInfo response too short", ErrDecodeInvalid)
	}
	info := &DeviceInfo{
		MajorVersion: data[4],
		MinorVersion: data[5],
		BuildVersion: binary.LittleEndian.Uint16(data[6:8]),
		DeviceName:   decodeStringValue(data[8:24]),
	}
	c.mu.Lock()
	c.deviceInfo = info
	c.mu.Unlock()
	return info, nil
}

// GetState issues ReadState, returning the raw (ads_state, device_state)
// pair reported by the runtime.
func (c *Client) GetState() (adsState, deviceState uint16, err error) {
	data, err := c.conn.Request(CmdReadState, nil)
	if err != nil {
		return 0, 0, err
	}
	if len(data) < 8 {
		return 0, 0, fmt.Errorf("%w: ReadState response too short", ErrDecodeInvalid)
	}
	result := binary.LittleEndian.Uint32(data[0:4])
	if result != 0 {
		return 0, 0, &AdsError{Code: result}
	}
	return binary.LittleEndian.Uint16(data[4:6]), binary.LittleEndian.Uint16(data[6:8]), nil
}

// lookupSymbol satisfies the dictionary interface used by the resolver and
// value codec.
func (c *Client) lookupSymbol(upperName string) (*Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.symbols[upperName]
	return s, ok
}

func (c *Client) lookupDataType(typeName string) (*DataType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dt, ok := c.dataTypes[typeName]
	return dt, ok
}

// ResolveTag resolves a dotted tag path, loading the symbol/data-type
// tables lazily if they haven't been loaded yet.
func (c *Client) ResolveTag(path string) (FindTag, error) {
	c.mu.RLock()
	empty := len(c.symbols) == 0
	c.mu.RUnlock()
	if empty {
		if _, err := c.loadSymbolTable(); err != nil {
			return FindTag{}, err
		}
		if _, err := c.loadDataTypeTable(); err != nil {
			return FindTag{}, err
		}
	}
	return resolveTagPath(c, path)
}

// ReadTag resolves name and decodes its current value.
func (c *Client) ReadTag(name string) (any, error) {
	tag, err := c.ResolveTag(name)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], tag.Group)
	binary.LittleEndian.PutUint32(payload[4:8], tag.Offset)
	binary.LittleEndian.PutUint32(payload[8:12], tag.Size)

	data, err := c.conn.Request(CmdRead, payload)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: Read response too short", ErrDecodeInvalid)
	}
	result := binary.LittleEndian.Uint32(data[0:4])
	if result != 0 {
		return nil, &AdsError{Code: result}
	}
	length := binary.LittleEndian.Uint32(data[4:8])
	body := data[8:]
	if uint32(len(body)) < length {
		return nil, fmt.Errorf("%w: Read payload shorter than declared length", ErrDecodeInvalid)
	}
	return decodeValue(c, tag, body[:length])
}

// WriteTag resolves name, encodes value, and issues a Write. It is an
// error for the encoded length to differ from the resolved tag size.
func (c *Client) WriteTag(name string, value any) error {
	tag, err := c.ResolveTag(name)
	if err != nil {
		return err
	}
	encoded, err := encodeValue(c, tag, value)
	if err != nil {
		return err
	}
	if uint32(len(encoded)) != tag.Size {
		return fmt.Errorf("%w: encoded %d bytes for a %d-byte tag", ErrDecodeInvalid, len(encoded), tag.Size)
	}

	payload := make([]byte, 12+len(encoded))
	binary.LittleEndian.PutUint32(payload[0:4], tag.Group)
	binary.LittleEndian.PutUint32(payload[4:8], tag.Offset)
	binary.LittleEndian.PutUint32(payload[8:12], tag.Size)
	copy(payload[12:], encoded)

	data, err := c.conn.Request(CmdWrite, payload)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("%w: Write response too short", ErrDecodeInvalid)
	}
	if result := binary.LittleEndian.Uint32(data[0:4]); result != 0 {
		return &AdsError{Code: result}
	}
	return nil
}

// MonitorTag registers cb for value-change notifications on name. If an
// entry already exists, cb is appended and the existing handle reused;
// otherwise the tag is resolved and AddDeviceNotification is issued.
func (c *Client) MonitorTag(name string, cb NotificationCallback) error {
	upper := strings.ToUpper(name)
	if _, ok := c.notifications.find(upper); ok {
		c.notifications.appendCallback(upper, cb)
		return nil
	}
	if c.notifications.count() >= maxNotificationHandles {
		return ErrTooManyHandles
	}

	tag, err := c.ResolveTag(name)
	if err != nil {
		return err
	}
	data, err := c.conn.Request(CmdAddDeviceNotify, encodeAddNotificationPayload(tag.Group, tag.Offset, tag.Size))
	if err != nil {
		return err
	}
	handle, err := decodeAddNotificationResponse(data)
	if err != nil {
		return err
	}
	c.notifications.add(upper, tag, handle, cb)
	return nil
}

// StopMonitorTag removes cb from name's callback list; if none remain, the
// server-side subscription is deleted.
func (c *Client) StopMonitorTag(name string, cb NotificationCallback) error {
	upper := strings.ToUpper(name)
	h, ok := c.notifications.find(upper)
	if !ok {
		return nil
	}
	h.callbacks = removeCallback(h.callbacks, cb)
	if len(h.callbacks) > 0 {
		return nil
	}
	c.notifications.remove(upper)
	_, err := c.conn.Request(CmdDeleteDeviceNotify, encodeDeleteNotificationPayload(h.serverHandle))
	return err
}

func removeCallback(cbs []NotificationCallback, target NotificationCallback) []NotificationCallback {
	out := cbs[:0]
	matched := false
	targetPtr := fmt.Sprintf("%p", target)
	for _, cb := range cbs {
		if !matched && fmt.Sprintf("%p", cb) == targetPtr {
			matched = true
			continue
		}
		out = append(out, cb)
	}
	return out
}

// demux decodes a DeviceNotification frame and dispatches each sample to its
// registered callbacks. A failure decoding one sample does not abort the
// rest.
func (c *Client) demux(pkt *Packet) {
	// The notification data begins with a 4-byte length field before the
	// stamp count.
	if len(pkt.Data) < 4 {
		c.emit(Event{Type: EventError, Err: fmt.Errorf("%w: notification frame too short", ErrDecodeInvalid)})
		return
	}
	samples, err := decodeNotificationFrame(pkt.Data[4:])
	if err != nil {
		c.emit(Event{Type: EventError, Err: err})
		return
	}
	for _, sample := range samples {
		h, ok := c.notifications.byServerHandle(sample.handle)
		if !ok {
			continue
		}
		tag, err := c.ResolveTag(h.tagName)
		if err != nil {
			tag = h.tag
		}
		value, err := decodeValue(c, tag, sample.payload)
		if err != nil {
			c.emit(Event{Type: EventError, Err: err})
			continue
		}
		for _, cb := range h.callbacks {
			func() {
				defer func() { recover() }()
				cb(value, sample.timestamp)
			}()
		}
	}
}

// resubscribeAll re-registers every active notification after a reconnect:
// best-effort delete of the old handle, then a fresh AddDeviceNotification
// against the newly resolved address.
func (c *Client) resubscribeAll() {
	for _, h := range c.notifications.all() {
		c.conn.Request(CmdDeleteDeviceNotify, encodeDeleteNotificationPayload(h.serverHandle))

		tag, err := c.ResolveTag(h.tagName)
		if err != nil {
			c.emit(Event{Type: EventError, Err: err})
			continue
		}
		data, err := c.conn.Request(CmdAddDeviceNotify, encodeAddNotificationPayload(tag.Group, tag.Offset, tag.Size))
		if err != nil {
			c.emit(Event{Type: EventError, Err: err})
			continue
		}
		newHandle, err := decodeAddNotificationResponse(data)
		if err != nil {
			c.emit(Event{Type: EventError, Err: err})
			continue
		}
		c.notifications.rebind(h, newHandle)
		h.tag = tag
	}
}

// loadSymbolTable fetches UploadInfo (cached 10s) and SYM_UPLOAD, replacing
// the symbol dictionary.
func (c *Client) loadSymbolTable() ([]*Symbol, error) {
	info, err := c.fetchUploadInfo()
	if err != nil {
		return nil, err
	}
	if info.SymbolCount == 0 {
		return nil, nil
	}

	data, err := c.readIndexed(IndexGroupSymUpload, 0, info.SymbolTableBytes)
	if err != nil {
		return nil, err
	}
	symbols, err := decodeSymbols(data)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Symbol, len(symbols))
	for _, s := range symbols {
		byName[s.UpperName] = s
	}
	c.mu.Lock()
	c.symbols = byName
	c.mu.Unlock()
	return symbols, nil
}

// loadDataTypeTable fetches UploadInfo (cached 10s) and SYM_DT_UPLOAD,
// replacing the data-type dictionary.
func (c *Client) loadDataTypeTable() ([]*DataType, error) {
	info, err := c.fetchUploadInfo()
	if err != nil {
		return nil, err
	}
	if info.DataTypeCount == 0 {
		return nil, nil
	}

	data, err := c.readIndexed(IndexGroupDataTypeUpload, 0, info.DataTypeTableBytes)
	if err != nil {
		return nil, err
	}
	types, err := decodeDataTypes(data)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*DataType, len(types))
	for _, dt := range types {
		byName[dt.Name] = dt
	}
	c.mu.Lock()
	c.dataTypes = byName
	c.mu.Unlock()
	return types, nil
}

// fetchUploadInfo returns the cached UploadInfo if it's under 10 seconds
// old, otherwise issues SYM_UPLOADINFO2.
func (c *Client) fetchUploadInfo() (UploadInfo, error) {
	c.mu.RLock()
	if time.Since(c.uploadInfoAt) < 10*time.Second && !c.uploadInfoAt.IsZero() {
		info := c.uploadInfo
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	data, err := c.readIndexed(IndexGroupSymUploadInfo2, 0, 24)
	if err != nil {
		return UploadInfo{}, err
	}
	info, err := decodeUploadInfo2(data)
	if err != nil {
		return UploadInfo{}, err
	}
	c.mu.Lock()
	c.uploadInfo = info
	c.uploadInfoAt = time.Now()
	c.mu.Unlock()
	return info, nil
}

// readIndexed issues a Read against (group, offset) expecting length bytes
// back, returning just the decoded payload.
func (c *Client) readIndexed(group, offset, length uint32) ([]byte, error) {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], group)
	binary.LittleEndian.PutUint32(payload[4:8], offset)
	binary.LittleEndian.PutUint32(payload[8:12], length)

	data, err := c.conn.Request(CmdRead, payload)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: Read response too short", ErrDecodeInvalid)
	}
	result := binary.LittleEndian.Uint32(data[0:4])
	if result != 0 {
		return nil, &AdsError{Code: result}
	}
	respLen := binary.LittleEndian.Uint32(data[4:8])
	body := data[8:]
	if uint32(len(body)) < respLen {
		return nil, fmt.Errorf("%w: Read payload shorter than declared length", ErrDecodeInvalid)
	}
	return body[:respLen], nil
}

// AllTags returns every resolvable top-level symbol, sorted by name.
func (c *Client) AllTags() []*Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Symbol, 0, len(c.symbols))
	for _, s := range c.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
