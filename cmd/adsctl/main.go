// adsctl - minimal command-line client for a Beckhoff ADS/AMS runtime.
//
// It connects to a single target, performs one operation, and exits (or,
// for "monitor", stays resident until interrupted). All protocol logic
// lives in package ads; this command only wires config, logging, and a
// few flags to it.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adsgo/adsgo/ads"
	"github.com/adsgo/adsgo/config"
	"github.com/adsgo/adsgo/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configPath  = flag.String("config", "", "Path to configuration file (overrides -host/-ams-port)")
	host        = flag.String("host", "", "Target host or IP")
	amsPort     = flag.Int("ams-port", 851, "Target AMS port")
	netID       = flag.String("net-id", "", "Target AMS NetID (defaults to \"<host>.1.1\")")
	showVersion = flag.Bool("version", false, "Show version and exit")
	logDebug    = flag.String("log-debug", "", "Path to write the client's debug trace (connection debug lines)")
	logFile     = flag.String("log-file", "", "Path to write operational log lines (connect/close/reconnect/error)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("adsctl %s\n", Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	var debugLogger *logging.DebugLogger
	var clientOpts []ads.Option
	if *logDebug != "" {
		debugLogger, err = logging.NewDebugLogger(*logDebug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open debug log: %v\n", err)
		} else {
			defer debugLogger.Close()
			clientOpts = append(clientOpts, ads.WithLogger(debugLogger))
		}
	}
	clientOpts = append(clientOpts,
		ads.WithReconnect(cfg.Reconnect.Enabled, time.Duration(cfg.Reconnect.IntervalMS)*time.Millisecond),
		ads.WithPreload(cfg.Preload.Symbols, cfg.Preload.DataTypes),
	)

	targetNetId, err := resolveNetId(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	client, err := ads.NewClient(cfg.Target.Host, targetNetId, uint16(cfg.Target.AmsPort), clientOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating client: %v\n", err)
		os.Exit(1)
	}
	var opLogger *logging.FileLogger
	if *logFile != "" {
		opLogger, err = logging.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file: %v\n", err)
		} else {
			defer opLogger.Close()
		}
	}
	client.OnEvent(func(ev ads.Event) {
		if ev.Type == ads.EventError {
			fmt.Fprintf(os.Stderr, "ads: %v\n", ev.Err)
		}
		if opLogger != nil {
			opLogger.Log("%s", ev.Type)
		}
	})

	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	switch args[0] {
	case "info":
		runInfo(client)
	case "alltags":
		runAllTags(client)
	case "read":
		runRead(client, args[1:])
	case "write":
		runWrite(client, args[1:])
	case "monitor":
		runMonitor(client, args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `adsctl - Beckhoff ADS/AMS command-line client

Usage:
  adsctl [flags] info
  adsctl [flags] alltags
  adsctl [flags] read <tag-path>
  adsctl [flags] write <tag-path> <value>
  adsctl [flags] monitor <tag-path> [<tag-path> ...]

Flags:
`)
	flag.PrintDefaults()
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	cfg := config.DefaultConfig()
	cfg.Target.Host = *host
	cfg.Target.AmsPort = *amsPort
	cfg.Target.NetID = *netID
	return cfg, nil
}

func resolveNetId(cfg *config.Config) (ads.AmsNetId, error) {
	if cfg.Target.NetID != "" {
		return ads.ParseAmsNetId(cfg.Target.NetID)
	}
	return ads.AmsNetIdFromIP(cfg.Target.Host)
}

func runInfo(c *ads.Client) {
	info, err := c.GetDeviceInfo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading device info: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(info)

	adsState, deviceState, err := c.GetState()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ads state: %d, device state: %d\n", adsState, deviceState)
}

func runAllTags(c *ads.Client) {
	for _, s := range c.AllTags() {
		fmt.Printf("%-40s %-20s size=%d group=0x%x offset=0x%x\n", s.Name, s.TypeName, s.Size, s.Group, s.Offset)
	}
}

func runRead(c *ads.Client, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adsctl read <tag-path>")
		os.Exit(1)
	}
	value, err := c.ReadTag(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Printf("%v\n", value)
}

func runWrite(c *ads.Client, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: adsctl write <tag-path> <value>")
		os.Exit(1)
	}
	value := parseScalar(args[1])
	if err := c.WriteTag(args[0], value); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Printf("wrote %v to %s\n", value, args[0])
}

// parseScalar guesses the intended primitive kind from the string's shape.
// The ADS value codec rejects a non-bool for a BIT tag; for a numeric tag a
// value of a non-numeric type is written as zero.
func parseScalar(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func runMonitor(c *ads.Client, tagPaths []string) {
	if len(tagPaths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: adsctl monitor <tag-path> [<tag-path> ...]")
		os.Exit(1)
	}

	for _, path := range tagPaths {
		path := path
		cb := func(value any, timestamp time.Time) {
			fmt.Printf("%s %s = %v\n", timestamp.Format(time.RFC3339Nano), path, value)
		}
		if err := c.MonitorTag(path, cb); err != nil {
			fmt.Fprintf(os.Stderr, "Error monitoring %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("monitoring, press Ctrl+C to stop")
	<-sigChan
	fmt.Println("\nstopping")
}
