package metrics

import "testing"

func TestCanonicalPathCollapsesIDs(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/":                         "/",
		"/healthz":                  "/healthz",
		"/v1/platform-apis":         "/v1/platform-apis",
		"/v1/platform-apis/abc-123": "/v1/platform-apis/:id",
		"/v1/clusters/cluster-42":   "/v1/clusters/:id",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordCompileDoesNotPanic(t *testing.T) {
	RecordCompile(nil, 0)
	RecordCompile(errBoom, 0)
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errBoom = fakeErr("boom")
