package node

import "strings"

// NormalizeAddress turns a peer address into the canonical base URL used as
// its identity: surrounding space and trailing slashes are cut and a bare
// host:port gets an http:// scheme.
func NormalizeAddress(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr
}
