package quic

import "strings"

// varyValue captures one request header's value for Vary comparison,
// distinguishing an absent header from one present with an empty value.
type varyValue struct {
	value   string
	present bool
}

// VaryData summarizes a response's Vary semantics against the request that
// produced it: which header names the response declares as varying and the
// values the request carried for them.
type VaryData struct {
	// VaryAll is set when the response declares "Vary: *", which can never
	// be matched by a later request.
	VaryAll bool
	// Names are the varying header names, lowercased, in declaration order.
	Names []string

	values map[string]varyValue
}

// NewVaryData builds VaryData from a request/response pair. It returns nil
// when the response declares no usable Vary information, in which case a URL
// match alone validates a later request.
func NewVaryData(request, response HeaderBlock) *VaryData {
	var names []string
	varyAll := false
	for _, raw := range response.Values("vary") {
		for _, part := range strings.Split(raw, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			if name == "" {
				continue
			}
			if name == "*" {
				varyAll = true
				continue
			}
			names = append(names, name)
		}
	}
	if !varyAll && len(names) == 0 {
		return nil
	}

	vd := &VaryData{
		VaryAll: varyAll,
		Names:   names,
		values:  make(map[string]varyValue, len(names)),
	}
	for _, name := range names {
		vd.values[name] = requestVaryValue(request, name)
	}
	return vd
}

// MatchesRequest reports whether the given request carries the same values
// for every varying header as the request this VaryData was built from.
// "Vary: *" never matches.
func (vd *VaryData) MatchesRequest(request HeaderBlock) bool {
	if vd.VaryAll {
		return false
	}
	for _, name := range vd.Names {
		if requestVaryValue(request, name) != vd.values[name] {
			return false
		}
	}
	return true
}

// requestVaryValue folds a request's values for one header name into a single
// comparable token. Repeated fields are joined in order.
func requestVaryValue(request HeaderBlock, name string) varyValue {
	values := request.Values(name)
	if values == nil {
		return varyValue{}
	}
	return varyValue{value: strings.Join(values, ", "), present: true}
}

// CheckVary decides whether a push offer may satisfy an actual client
// request. clientRequest and promiseRequest are full request header blocks;
// promiseResponse is the cached promised response's header block. The
// promised response must reconstruct into a valid response view, and every
// header it names as varying must carry identical values in both requests.
func CheckVary(clientRequest, promiseRequest, promiseResponse HeaderBlock) bool {
	if _, err := ParseStatusCode(promiseResponse); err != nil {
		// An offer whose cached response headers cannot be interpreted is
		// never trusted.
		return false
	}

	vd := NewVaryData(promiseRequest, promiseResponse)
	if vd == nil {
		// No valid vary info: the URL match was sufficient.
		return true
	}
	return vd.MatchesRequest(clientRequest)
}
