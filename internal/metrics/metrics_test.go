package metrics

import "testing"

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		201: "2xx",
		301: "3xx",
		404: "4xx",
		409: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}
