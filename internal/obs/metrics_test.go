package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/sessions/sess_01":          "/v1/sessions/:id",
		"/v1/sessions/sess_01/report":   "/v1/sessions/:id/report",
		"/v1/sessions/sess_01/valid":    "/v1/sessions/:id/valid",
		"/v1/sessions/abc/operations":   "/v1/sessions/:id/operations",
		"/v1/sessions/abc/extra":        "/v1/sessions/abc/extra",
		"/v1/access/check":              "/v1/access/check",
		"/v1/data/process?sort=total":   "/v1/data/process",
		"/v1/sessions":                  "/v1/sessions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
