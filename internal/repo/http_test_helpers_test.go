package repo

import "net/http"

// roundTripFunc lets a test stand in for the log store by answering the
// client's HTTP requests directly, no listener needed.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}
