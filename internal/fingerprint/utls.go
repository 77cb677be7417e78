package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello presented to the search API.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a configuration string onto a Profile. The empty string
// selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileGo, nil
	}
	if _, err := helloID(p); err != nil && p != ProfileGo {
		return "", err
	}
	return p, nil
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an http.RoundTripper for the given profile. ProfileGo
// yields a clone of http.DefaultTransport; every other profile performs the
// handshake through utls.UClient.
//
// The transport only speaks HTTP/1.1 on a utls connection, so the browser
// profiles advertise http/1.1 in ALPN instead of h2.
func Transport(p Profile) (http.RoundTripper, error) {
	return transport(p, nil)
}

func transport(p Profile, base *utls.Config) (http.RoundTripper, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if p == ProfileGo {
		return tr, nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}

	dial := tr.DialContext
	tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		cfg := &utls.Config{}
		if base != nil {
			cfg = base.Clone()
		}
		cfg.ServerName = host

		uConn, err := handshake(ctx, tcpConn, cfg, id)
		if err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		if proto := uConn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
			_ = uConn.Close()
			return nil, fmt.Errorf("fingerprint: server negotiated unsupported protocol %q", proto)
		}
		return uConn, nil
	}

	return tr, nil
}

func handshake(ctx context.Context, conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	if id == utls.HelloRandomizedNoALPN {
		uConn := utls.UClient(conn, cfg, id)
		return uConn, uConn.HandshakeContext(ctx)
	}

	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, err
	}
	http1Only(&spec)

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return uConn, uConn.HandshakeContext(ctx)
}

// http1Only rewrites the protocol lists of a browser hello to http/1.1.
func http1Only(spec *utls.ClientHelloSpec) {
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension:
			e.SupportedProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtensionNew:
			e.SupportedProtocols = []string{"http/1.1"}
		}
	}
}
