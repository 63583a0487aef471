package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// DNS-SD limits (RFC 6763).
const (
	// MaxInstanceNameLength is the longest instance label.
	MaxInstanceNameLength = 63

	// maxTXTEntryLength is the longest single TXT string.
	maxTXTEntryLength = 255
)

// StatusTXT is the TXT record published with the status service.
type StatusTXT struct {
	// Path is the HTTP path of the latest-reading endpoint (e.g. "/data").
	Path string

	// Extra holds additional key=value pairs.
	Extra map[string]string
}

// TXTVersion is the txtvers value published with the status service.
const TXTVersion = "1"

// Encode returns the TXT strings, txtvers first, then path, then the extra
// keys in sorted order.
func (t StatusTXT) Encode() ([]string, error) {
	out := []string{"txtvers=" + TXTVersion}
	if t.Path != "" {
		out = append(out, "path="+t.Path)
	}

	keys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+t.Extra[k])
	}

	for _, entry := range out {
		key, _, _ := strings.Cut(entry, "=")
		if key == "" || len(entry) > maxTXTEntryLength {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTXTRecord, entry)
		}
	}
	return out, nil
}
