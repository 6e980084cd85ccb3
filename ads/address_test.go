package ads

import "testing"

func TestParseAmsNetId(t *testing.T) {
	netId, err := ParseAmsNetId("192.168.1.100.1.1")
	if err != nil {
		t.Fatalf("ParseAmsNetId: %v", err)
	}
	want := AmsNetId{192, 168, 1, 100, 1, 1}
	if netId != want {
		t.Errorf("netId = %v, want %v", netId, want)
	}
	if netId.String() != "192.168.1.100.1.1" {
		t.Errorf("String() = %q", netId.String())
	}
}

func TestParseAmsNetIdRejectsMalformed(t *testing.T) {
	cases := []string{"", "1.2.3.4.5", "1.2.3.4.5.6.7", "1.2.3.4.5.x"}
	for _, c := range cases {
		if _, err := ParseAmsNetId(c); err == nil {
			t.Errorf("ParseAmsNetId(%q): expected error", c)
		}
	}
}

func TestAmsNetIdIsZero(t *testing.T) {
	var zero AmsNetId
	if !zero.IsZero() {
		t.Error("zero value should report IsZero")
	}
	nonZero := AmsNetId{1, 1, 1, 1, 1, 1}
	if nonZero.IsZero() {
		t.Error("non-zero value should not report IsZero")
	}
}

func TestAmsNetIdFromIP(t *testing.T) {
	netId, err := AmsNetIdFromIP("10.0.0.5:48898")
	if err != nil {
		t.Fatalf("AmsNetIdFromIP: %v", err)
	}
	want := AmsNetId{10, 0, 0, 5, 1, 1}
	if netId != want {
		t.Errorf("netId = %v, want %v", netId, want)
	}
}

func TestAmsNetIdFromIPRejectsMalformed(t *testing.T) {
	if _, err := AmsNetIdFromIP("not-an-ip"); err == nil {
		t.Error("expected error for malformed IP")
	}
}

func TestAmsAddressString(t *testing.T) {
	addr := AmsAddress{NetId: AmsNetId{1, 1, 1, 1, 1, 1}, Port: 851}
	if got := addr.String(); got != "1.1.1.1.1.1:851" {
		t.Errorf("String() = %q", got)
	}
}
