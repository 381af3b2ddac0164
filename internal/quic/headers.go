package quic

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http2/hpack"
)

// HeaderBlock is an ordered set of header fields. Pseudo-headers (":method",
// ":scheme", ":authority", ":path", ":status") come first, followed by
// regular fields with lowercased names.
type HeaderBlock []hpack.HeaderField

// Get returns the value of the first field with the given name (compared
// case-insensitively) and whether it was present.
func (h HeaderBlock) Get(name string) (string, bool) {
	for _, hf := range h {
		if strings.EqualFold(hf.Name, name) {
			return hf.Value, true
		}
	}
	return "", false
}

// Values returns all values recorded for the given name, in order.
func (h HeaderBlock) Values(name string) []string {
	var out []string
	for _, hf := range h {
		if strings.EqualFold(hf.Name, name) {
			out = append(out, hf.Value)
		}
	}
	return out
}

// Clone returns a deep-enough copy of the block. hpack.HeaderField holds
// immutable strings, so copying the slice suffices.
func (h HeaderBlock) Clone() HeaderBlock {
	if h == nil {
		return nil
	}
	out := make(HeaderBlock, len(h))
	copy(out, h)
	return out
}

// WireSize estimates the uncompressed size of the block: name plus value plus
// the per-entry overhead HPACK accounting assigns (RFC 7541 Section 4.1).
func (h HeaderBlock) WireSize() int {
	size := 0
	for _, hf := range h {
		size += len(hf.Name) + len(hf.Value) + 32
	}
	return size
}

// RequestInfo describes the request an adapter carries. It is immutable for
// the adapter's lifetime.
type RequestInfo struct {
	Method string
	// URL is the full request URL; it keys push-promise lookups.
	URL string
	// Headers are the caller's extra request headers (no pseudo-headers).
	Headers HeaderBlock
	// Body is the outbound body source, nil for bodyless requests.
	Body BodySource
	// DisableConnectionMigration asks the transport to pin the stream to the
	// current network path.
	DisableConnectionMigration bool
}

// BuildRequestHeaderBlock assembles the header block sent on the wire:
// request pseudo-headers followed by the given headers, names lowercased.
// Hop-by-hop fields that have no meaning on a multiplexed transport
// (Connection, Proxy-Connection, Transfer-Encoding, Host) are dropped; Host
// is carried by :authority.
func BuildRequestHeaderBlock(method, url string, headers HeaderBlock) (HeaderBlock, error) {
	scheme, authority, path, err := splitURL(url)
	if err != nil {
		return nil, err
	}
	block := HeaderBlock{
		{Name: ":method", Value: method},
		{Name: ":scheme", Value: scheme},
		{Name: ":authority", Value: authority},
		{Name: ":path", Value: path},
	}
	for _, hf := range headers {
		name := strings.ToLower(hf.Name)
		switch name {
		case "connection", "proxy-connection", "transfer-encoding", "host":
			continue
		}
		block = append(block, hpack.HeaderField{Name: name, Value: hf.Value})
	}
	return block, nil
}

// RequestURL reconstructs the URL a header block describes, for matching
// against the push-promise index.
func RequestURL(h HeaderBlock) (string, bool) {
	scheme, okS := h.Get(":scheme")
	authority, okA := h.Get(":authority")
	path, okP := h.Get(":path")
	if !okS || !okA || !okP {
		return "", false
	}
	return scheme + "://" + authority + path, true
}

// splitURL breaks "scheme://authority/path?query" into its header block
// components. The path component includes the query.
func splitURL(raw string) (scheme, authority, path string, err error) {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return "", "", "", fmt.Errorf("quic: request URL %q has no scheme", raw)
	}
	scheme = raw[:i]
	rest := raw[i+3:]
	if rest == "" {
		return "", "", "", fmt.Errorf("quic: request URL %q has no authority", raw)
	}
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		authority = rest[:j]
		path = rest[j:]
	} else {
		authority = rest
		path = "/"
	}
	if authority == "" {
		return "", "", "", fmt.Errorf("quic: request URL %q has no authority", raw)
	}
	return scheme, authority, path, nil
}

// ParseStatusCode extracts and validates the :status pseudo-header of a
// response block.
func ParseStatusCode(h HeaderBlock) (int, error) {
	raw, ok := h.Get(":status")
	if !ok {
		return 0, fmt.Errorf("quic: response headers missing :status")
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < 100 || code > 599 {
		return 0, fmt.Errorf("quic: response headers carry invalid :status %q", raw)
	}
	return code, nil
}
