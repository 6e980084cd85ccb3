package ads

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DiscoveredDevice contains identity information about a discovered
// Beckhoff/TwinCAT device. Discovery is a best-effort operator convenience:
// it builds its own throwaway ReadDeviceInfo packet outside of any Client
// session and is never invoked by the core connect/read/write/monitor path.
type DiscoveredDevice struct {
	IP          net.IP
	Port        uint16
	AmsNetId    string
	ProductName string
	Connected   bool
}

func (d *DiscoveredDevice) String() string {
	if d.AmsNetId != "" {
		return fmt.Sprintf("TwinCAT at %s:%d (AMS: %s)", d.IP, d.Port, d.AmsNetId)
	}
	return fmt.Sprintf("TwinCAT at %s:%d", d.IP, d.Port)
}

// Discover probes each IP in ips on the default AMS/TCP port and returns the
// devices that answered a ReadDeviceInfo request.
func Discover(ips []net.IP, timeout time.Duration, concurrency int) []DiscoveredDevice {
	if len(ips) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 20
	}

	var (
		results []DiscoveredDevice
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, concurrency)
	)

	for _, ip := range ips {
		wg.Add(1)
		sem <- struct{}{}
		go func(ip net.IP) {
			defer wg.Done()
			defer func() { <-sem }()
			if device := probeADS(ip, timeout); device != nil {
				mu.Lock()
				results = append(results, *device)
				mu.Unlock()
			}
		}(ip)
	}
	wg.Wait()
	return results
}

// DiscoverSubnet expands cidr (e.g. "192.168.1.0/24") and probes its
// addresses. When the host portion is 8 bits or wider, every address whose
// last octet is 0 or 255 is skipped; for a /24 these are exactly the network
// and broadcast addresses.
func DiscoverSubnet(cidr string, timeout time.Duration, concurrency int) ([]DiscoveredDevice, error) {
	ips, err := expandCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return Discover(ips, timeout, concurrency), nil
}

func probeADS(ip net.IP, timeout time.Duration) *DiscoveredDevice {
	addr := fmt.Sprintf("%s:%d", ip.String(), DefaultTCPPort)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if device := tryADSDeviceInfo(conn, ip); device != nil {
		return device
	}
	return &DiscoveredDevice{
		IP:          ip,
		Port:        DefaultTCPPort,
		ProductName: "TwinCAT (unconfirmed)",
	}
}

// tryADSDeviceInfo probes conn with a bare ReadDeviceInfo request, built and
// parsed with the same amsHeader/encodeFrame/decodeFrames codec the rest of
// this package uses for real sessions, rather than a second hand-rolled
// layout. The probe's own AMS address (source == target) is derived from ip,
// since there is no router registration to borrow one from at this point.
func tryADSDeviceInfo(conn net.Conn, ip net.IP) *DiscoveredDevice {
	var netId AmsNetId
	if v4 := ip.To4(); v4 != nil {
		netId = AmsNetId{v4[0], v4[1], v4[2], v4[3], 1, 1}
	}

	req := amsHeader{
		TargetNetId: netId,
		TargetPort:  PortTC3PLC1,
		SourceNetId: netId,
		SourcePort:  32768,
		CommandId:   CmdReadDeviceInfo,
		StateFlags:  StateFlagRequest,
		InvokeId:    1,
	}
	packet, err := encodeFrame(req, nil)
	if err != nil {
		return nil
	}
	if _, err := conn.Write(packet); err != nil {
		return nil
	}

	prelude := make([]byte, tcpPreludeSize)
	if _, err := io.ReadFull(conn, prelude); err != nil {
		return nil
	}
	declaredLen := binary.LittleEndian.Uint32(prelude[2:6])
	if declaredLen < amsHeaderSize || declaredLen > 1024 {
		return nil
	}
	amsBuf := make([]byte, declaredLen)
	if _, err := io.ReadFull(conn, amsBuf); err != nil {
		return nil
	}

	_, packets, err := decodeFrames(append(prelude, amsBuf...))
	if err != nil || len(packets) != 1 {
		return nil
	}
	resp := packets[0]
	if resp.Header.CommandId != CmdReadDeviceInfo || !resp.Header.IsResponse() {
		return nil
	}

	netIdStr := netId.String()
	if len(resp.Data) < 4+4+16 {
		return &DiscoveredDevice{IP: ip, Port: DefaultTCPPort, AmsNetId: netIdStr, ProductName: "TwinCAT", Connected: true}
	}

	majorVersion := resp.Data[4]
	minorVersion := resp.Data[5]
	buildVersion := binary.LittleEndian.Uint16(resp.Data[6:8])
	deviceName := decodeStringValue(resp.Data[8:24])

	productName := fmt.Sprintf("TwinCAT v%d.%d.%d", majorVersion, minorVersion, buildVersion)
	if deviceName != "" {
		productName = fmt.Sprintf("%s v%d.%d.%d", deviceName, majorVersion, minorVersion, buildVersion)
	}

	return &DiscoveredDevice{
		IP:          ip,
		Port:        DefaultTCPPort,
		AmsNetId:    netIdStr,
		ProductName: productName,
		Connected:   true,
	}
}

func expandCIDR(cidr string) ([]net.IP, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR: %w", err)
	}

	var ips []net.IP
	for ip := ip.Mask(ipnet.Mask); ipnet.Contains(ip); incIP(ip) {
		ones, bits := ipnet.Mask.Size()
		if bits-ones >= 8 && (ip[len(ip)-1] == 0 || ip[len(ip)-1] == 255) {
			continue
		}
		ipCopy := make(net.IP, len(ip))
		copy(ipCopy, ip)
		ips = append(ips, ipCopy)
	}
	return ips, nil
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
