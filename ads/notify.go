package ads

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// maxNotificationHandles is the per-connection cap on concurrent
// subscriptions.
const maxNotificationHandles = 550

// filetimeEpochOffset is the number of 100ns ticks between the Windows
// FILETIME epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
const filetimeEpochOffset = 116444736000000000

// filetimeToTime converts a Windows FILETIME (100ns ticks since
// 1601-01-01 UTC) to a platform-neutral instant.
func filetimeToTime(low, high uint32) time.Time {
	ticks := int64(high)<<32 | int64(low)
	unixTicks := ticks - filetimeEpochOffset
	return time.Unix(0, unixTicks*100).UTC()
}

// NotificationCallback receives a decoded value and its server timestamp.
// A panic inside a callback is recovered by the Client's demultiplexer and
// does not prevent delivery to the remaining callbacks and samples in the
// same frame; the recovered panic is not reported.
type NotificationCallback func(value any, timestamp time.Time)

// notificationHandle tracks one active subscription: the tag name it
// watches, the server-assigned handle (rebound after reconnect), the
// resolved address it was registered against, and every callback appended
// via monitor_tag.
type notificationHandle struct {
	tagName      string
	serverHandle uint32
	tag          FindTag
	callbacks    []NotificationCallback
}

// notificationRegistry is the Client's subscription store. It is mutated
// from MonitorTag/StopMonitorTag and read from the demultiplexer; a single
// mutex is adequate since lookups are cheap and hold times are short.
type notificationRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*notificationHandle
	byHandle map[uint32]*notificationHandle
}

func newNotificationRegistry() *notificationRegistry {
	return &notificationRegistry{
		byName:   make(map[string]*notificationHandle),
		byHandle: make(map[uint32]*notificationHandle),
	}
}

func (r *notificationRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func (r *notificationRegistry) find(tagName string) (*notificationHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[tagName]
	return h, ok
}

func (r *notificationRegistry) add(tagName string, tag FindTag, serverHandle uint32, cb NotificationCallback) *notificationHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &notificationHandle{tagName: tagName, serverHandle: serverHandle, tag: tag, callbacks: []NotificationCallback{cb}}
	r.byName[tagName] = h
	r.byHandle[serverHandle] = h
	activeNotificationHandles.Inc()
	return h
}

func (r *notificationRegistry) appendCallback(tagName string, cb NotificationCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byName[tagName]; ok {
		h.callbacks = append(h.callbacks, cb)
	}
}

func (r *notificationRegistry) remove(tagName string) *notificationHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byName[tagName]
	if !ok {
		return nil
	}
	delete(r.byName, tagName)
	delete(r.byHandle, h.serverHandle)
	activeNotificationHandles.Dec()
	return h
}

func (r *notificationRegistry) rebind(h *notificationHandle, newServerHandle uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byHandle, h.serverHandle)
	h.serverHandle = newServerHandle
	r.byHandle[newServerHandle] = h
}

func (r *notificationRegistry) all() []*notificationHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*notificationHandle, 0, len(r.byName))
	for _, h := range r.byName {
		out = append(out, h)
	}
	return out
}

func (r *notificationRegistry) byServerHandle(handle uint32) (*notificationHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byHandle[handle]
	return h, ok
}

// encodeAddNotificationPayload builds the 40-byte AddDeviceNotification
// request body. Defaults: OnChange transmission mode, 200ms max delay,
// 50ms cycle time.
func encodeAddNotificationPayload(group, offset, size uint32) []byte {
	buf := make([]byte, 40)
	binary.LittleEndian.PutUint32(buf[0:4], group)
	binary.LittleEndian.PutUint32(buf[4:8], offset)
	binary.LittleEndian.PutUint32(buf[8:12], size)
	binary.LittleEndian.PutUint32(buf[12:16], TransmissionModeOnChange)
	binary.LittleEndian.PutUint32(buf[16:20], 200)
	binary.LittleEndian.PutUint32(buf[20:24], 50)
	return buf
}

func decodeAddNotificationResponse(data []byte) (uint32, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: AddDeviceNotification response too short", ErrDecodeInvalid)
	}
	result := binary.LittleEndian.Uint32(data[0:4])
	if result != 0 {
		return 0, &AdsError{Code: result}
	}
	return binary.LittleEndian.Uint32(data[4:8]), nil
}

func encodeDeleteNotificationPayload(serverHandle uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, serverHandle)
	return buf
}

// notificationSample is one decoded element from a DeviceNotification frame.
type notificationSample struct {
	handle    uint32
	payload   []byte
	timestamp time.Time
}

// decodeNotificationFrame parses a DeviceNotification payload: stamps u32,
// then `stamps` blocks of {timestamp_low, timestamp_high, samples u32}
// followed by `samples` blocks of {handle u32, size u32, payload}.
func decodeNotificationFrame(data []byte) ([]notificationSample, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: notification frame too short", ErrDecodeInvalid)
	}
	stampCount := binary.LittleEndian.Uint32(data[0:4])
	pos := 4

	var out []notificationSample
	for s := uint32(0); s < stampCount; s++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("%w: truncated timestamp block", ErrDecodeInvalid)
		}
		low := binary.LittleEndian.Uint32(data[pos : pos+4])
		high := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		sampleCount := binary.LittleEndian.Uint32(data[pos+8 : pos+12])
		pos += 12
		ts := filetimeToTime(low, high)

		for i := uint32(0); i < sampleCount; i++ {
			if pos+8 > len(data) {
				return nil, fmt.Errorf("%w: truncated sample header", ErrDecodeInvalid)
			}
			handle := binary.LittleEndian.Uint32(data[pos : pos+4])
			size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
			pos += 8
			if pos+int(size) > len(data) {
				return nil, fmt.Errorf("%w: truncated sample payload", ErrDecodeInvalid)
			}
			out = append(out, notificationSample{handle: handle, payload: data[pos : pos+int(size)], timestamp: ts})
			pos += int(size)
		}
	}
	return out, nil
}
