package fingerprint

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"

	utls "github.com/refraction-networking/utls"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileGo, false},
		{"go", ProfileGo, false},
		{" Chrome ", ProfileChrome, false},
		{"firefox", ProfileFirefox, false},
		{"safari", ProfileSafari, false},
		{"random", ProfileRandom, false},
		{"netscape", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfile(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProfile(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransport_GoProfile(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt)
	}
	if tr.DialTLSContext != nil {
		t.Errorf("go profile should use the standard TLS stack")
	}

	// httptest.NewTLSServer uses a self-signed certificate.
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	resp, err := (&http.Client{Transport: tr}).Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", resp.StatusCode)
	}
}

func TestTransport_UTLSProfiles(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}
			if tr.DialTLSContext == nil {
				t.Errorf("expected uTLS dialer for profile %s", p)
			}
		})
	}
}

func TestTransport_UTLSProfilesAgainstHTTP2Server(t *testing.T) {
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor != 1 {
			t.Errorf("expected HTTP/1.x, got %s", r.Proto)
		}
		w.Write([]byte("ok"))
	}))
	ts.EnableHTTP2 = true
	ts.TLS = &tls.Config{NextProtos: []string{"h2", "http/1.1"}}
	ts.StartTLS()
	defer ts.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())

	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := transport(p, &utls.Config{RootCAs: roots})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			resp, err := (&http.Client{Transport: rt}).Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d", resp.StatusCode)
			}
		})
	}
}

func TestTransport_UTLSHandshakeFailure(t *testing.T) {
	// A plain HTTP listener cannot complete a TLS handshake.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileChrome)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	httpsURL := "https://" + ts.Listener.Addr().String()
	if _, err := (&http.Client{Transport: rt}).Get(httpsURL); err == nil {
		t.Fatal("expected handshake error against a non-TLS server")
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"))
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}
