package agent

import "testing"

func TestEndpoint(t *testing.T) {
    t.Parallel()
    cases := map[string]string{
        "https://peer:5001": "peer:5001",
        "http://10.0.0.5":   "10.0.0.5",
    }
    for url, want := range cases {
        got, err := Endpoint(url)
        if err != nil {
            t.Fatalf("Endpoint(%q): %v", url, err)
        }
        if got != want {
            t.Errorf("Endpoint(%q) = %q, want %q", url, got, want)
        }
    }
}

func TestEndpointRejectsMissingHost(t *testing.T) {
    t.Parallel()
    if _, err := Endpoint("not-a-url"); err == nil {
        t.Error("expected error for url with no host")
    }
}

func TestVersionLess(t *testing.T) {
    t.Parallel()
    cases := []struct {
        a, b string
        want bool
    }{
        {"1.3.9", "1.4.0", true},
        {"1.4.0", "1.4.0", false},
        {"1.5.0", "1.4.0", false},
        {"1.4", "1.4.0", false},
        {"1.3", "1.4.0", true},
    }
    for _, c := range cases {
        if got := versionLess(c.a, c.b); got != c.want {
            t.Errorf("versionLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
        }
    }
}

func TestToWebsocketURL(t *testing.T) {
    t.Parallel()
    got, err := toWebsocketURL("https://peer:5001")
    if err != nil {
        t.Fatal(err)
    }
    if got != "wss://peer:5001/ws" {
        t.Errorf("toWebsocketURL = %q", got)
    }

    got, err = toWebsocketURL("http://peer:5001")
    if err != nil {
        t.Fatal(err)
    }
    if got != "ws://peer:5001/ws" {
        t.Errorf("toWebsocketURL = %q", got)
    }
}
