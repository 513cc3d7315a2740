package version

import "testing"

func TestUserAgent(t *testing.T) {
	if got := UserAgent("sdk"); got != "supportgraph-sdk/dev (unknown)" {
		t.Errorf("UserAgent = %q", got)
	}
}
