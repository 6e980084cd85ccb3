package ads

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestFiletimeToTime(t *testing.T) {
	// FILETIME for 1970-01-01T00:00:00Z is exactly filetimeEpochOffset ticks.
	low := uint32(filetimeEpochOffset & 0xFFFFFFFF)
	high := uint32(filetimeEpochOffset >> 32)
	got := filetimeToTime(low, high)
	if !got.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("filetimeToTime at epoch = %v, want unix epoch", got)
	}
}

func TestEncodeAddNotificationPayload(t *testing.T) {
	buf := encodeAddNotificationPayload(0x4020, 0x100, 4)
	if len(buf) != 40 {
		t.Fatalf("payload length = %d, want 40", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != 0x4020 {
		t.Errorf("group mismatch")
	}
	if binary.LittleEndian.Uint32(buf[12:16]) != TransmissionModeOnChange {
		t.Errorf("expected OnChange transmission mode")
	}
	if binary.LittleEndian.Uint32(buf[16:20]) != 200 {
		t.Errorf("expected 200ms max delay")
	}
}

func TestDecodeAddNotificationResponse(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[4:8], 77)
	handle, err := decodeAddNotificationResponse(buf)
	if err != nil {
		t.Fatalf("decodeAddNotificationResponse: %v", err)
	}
	if handle != 77 {
		t.Errorf("handle = %d, want 77", handle)
	}
}

func TestDecodeAddNotificationResponseError(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], ErrDeviceSymbolNotFound)
	_, err := decodeAddNotificationResponse(buf)
	var adsErr *AdsError
	if !errors.As(err, &adsErr) || adsErr.Code != ErrDeviceSymbolNotFound {
		t.Errorf("expected AdsError wrapping symbol-not-found, got %v", err)
	}
}

func TestDecodeNotificationFrame(t *testing.T) {
	// One stamp, one sample of 4 bytes.
	buf := make([]byte, 4+12+8+4)
	binary.LittleEndian.PutUint32(buf[0:4], 1) // stampCount
	low := uint32(filetimeEpochOffset & 0xFFFFFFFF)
	high := uint32(filetimeEpochOffset >> 32)
	binary.LittleEndian.PutUint32(buf[4:8], low)
	binary.LittleEndian.PutUint32(buf[8:12], high)
	binary.LittleEndian.PutUint32(buf[12:16], 1) // sampleCount
	binary.LittleEndian.PutUint32(buf[16:20], 99) // handle
	binary.LittleEndian.PutUint32(buf[20:24], 4)  // size
	binary.LittleEndian.PutUint32(buf[24:28], 12345)

	samples, err := decodeNotificationFrame(buf)
	if err != nil {
		t.Fatalf("decodeNotificationFrame: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].handle != 99 {
		t.Errorf("handle = %d, want 99", samples[0].handle)
	}
	if binary.LittleEndian.Uint32(samples[0].payload) != 12345 {
		t.Errorf("payload mismatch")
	}
	if !samples[0].timestamp.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("timestamp = %v, want unix epoch", samples[0].timestamp)
	}
}

func TestDecodeNotificationFrameTruncated(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 1) // claims 1 stamp but no data follows
	if _, err := decodeNotificationFrame(buf); err == nil {
		t.Error("expected error for truncated timestamp block")
	}
}

func TestNotificationRegistry(t *testing.T) {
	reg := newNotificationRegistry()
	tag := FindTag{Group: 1, Offset: 2, Size: 4}
	cb := func(value any, ts time.Time) {}

	reg.add("MAIN.X", tag, 10, cb)
	if reg.count() != 1 {
		t.Fatalf("count = %d, want 1", reg.count())
	}
	h, ok := reg.find("MAIN.X")
	if !ok || h.serverHandle != 10 {
		t.Fatalf("find failed: %+v, %v", h, ok)
	}
	if _, ok := reg.byServerHandle(10); !ok {
		t.Error("byServerHandle lookup failed")
	}

	reg.appendCallback("MAIN.X", cb)
	h, _ = reg.find("MAIN.X")
	if len(h.callbacks) != 2 {
		t.Errorf("expected 2 callbacks after append, got %d", len(h.callbacks))
	}

	reg.rebind(h, 20)
	if _, ok := reg.byServerHandle(10); ok {
		t.Error("old handle should no longer resolve after rebind")
	}
	if _, ok := reg.byServerHandle(20); !ok {
		t.Error("new handle should resolve after rebind")
	}

	removed := reg.remove("MAIN.X")
	if removed == nil {
		t.Fatal("expected non-nil removed handle")
	}
	if reg.count() != 0 {
		t.Errorf("count after remove = %d, want 0", reg.count())
	}
	if _, ok := reg.byServerHandle(20); ok {
		t.Error("handle should not resolve after remove")
	}
}
