package protocol

import (
	"strconv"
	"strings"
)

// MaxHostLen bounds the host part of a connect target.
const MaxHostLen = 127

const tcpScheme = "tcp://"

// Address is a parsed tcp://<host>:<port> target.
type Address struct {
	Host string
	Port int
}

// String returns the address in host:port form.
func (a Address) String() string {
	if strings.Contains(a.Host, ":") {
		return "[" + a.Host + "]:" + strconv.Itoa(a.Port)
	}
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// URI returns the address in tcp://<host>:<port> form.
func (a Address) URI() string { return tcpScheme + a.String() }

// ParseTCPURI parses a connect target of the form tcp://<host>:<port>.
// The last colon separates host and port, so bracketed IPv6 hosts work.
func ParseTCPURI(uri string) (Address, error) {
	rest, ok := strings.CutPrefix(uri, tcpScheme)
	if !ok {
		return Address{}, &URIError{URI: uri, Reason: "scheme must be tcp://"}
	}
	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return Address{}, &URIError{URI: uri, Reason: "missing port"}
	}
	host, portText := rest[:i], rest[i+1:]
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return Address{}, &URIError{URI: uri, Reason: "missing host"}
	}
	if len(host) > MaxHostLen {
		return Address{}, &URIError{URI: uri, Reason: "host too long"}
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, &URIError{URI: uri, Reason: "invalid port"}
	}
	return Address{Host: host, Port: port}, nil
}
