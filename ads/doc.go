// Package ads implements a client for the Beckhoff ADS/AMS protocol carried
// over TCP. It connects to a TwinCAT runtime, resolves named PLC symbols
// against the runtime's self-describing symbol and data-type tables, and
// performs typed reads, writes, and change notifications over a persistent,
// reconnecting session.
package ads
