package p4rtclient

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
)

// PathElem is one element of a parsed gNMI path: a name and its bracketed
// key=value qualifiers, e.g. "b[k1=v1][k2=v2]" -> {Name: "b", Keys: {"k1":
// "v1", "k2": "v2"}}.
type PathElem struct {
	Name string
	Keys map[string]string
}

// ParsePath parses a gNMI-style path of the form "/a/b[k1=v1][k2=v2]/c"
// into its elements, per spec.md §6. A leading "/" is optional and
// ignored; elements are separated by "/".
func ParsePath(path string) ([]PathElem, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	var elems []PathElem
	for _, raw := range strings.Split(path, "/") {
		if raw == "" {
			continue
		}
		elem, err := parseElem(raw)
		if err != nil {
			return nil, fmt.Errorf("p4rtclient: parse gNMI path %q: %w", path, err)
		}
		elems = append(elems, elem)
	}
	return elems, nil
}

func parseElem(raw string) (PathElem, error) {
	name := raw
	var keys map[string]string

	if idx := strings.IndexByte(raw, '['); idx >= 0 {
		name = raw[:idx]
		rest := raw[idx:]
		keys = make(map[string]string)

		for len(rest) > 0 {
			if rest[0] != '[' {
				return PathElem{}, fmt.Errorf("malformed element %q", raw)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return PathElem{}, fmt.Errorf("unterminated key in %q", raw)
			}
			kv := rest[1:end]
			eq := strings.IndexByte(kv, '=')
			if eq < 0 {
				return PathElem{}, fmt.Errorf("key %q missing '=' in %q", kv, raw)
			}
			keys[kv[:eq]] = kv[eq+1:]
			rest = rest[end+1:]
		}
	}

	return PathElem{Name: name, Keys: keys}, nil
}

// DialGNMI dials the companion gNMI channel for a Stratum device, which
// lives on the same host:port as the P4Runtime channel per spec.md §6. It
// is a distinct *grpc.ClientConn, grounded on gnmitunnel.Client's pattern
// of a second purpose-built gRPC dial alongside the primary one.
func DialGNMI(ctx context.Context, address string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("p4rtclient: dial gNMI %s: %w", address, err)
	}
	return conn, nil
}
