package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	switch {
	case b.Version == "":
		t.Error("version should not be empty")
	case b.Commit == "":
		t.Error("commit should not be empty")
	case b.Date == "":
		t.Error("date should not be empty")
	case !strings.HasPrefix(b.GoVersion, "go") && b.GoVersion != "devel":
		t.Logf("unusual go version %q", b.GoVersion)
	}
	if Version() != b.Version {
		t.Errorf("Version (%s) should match Get().Version (%s)", Version(), b.Version)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String should contain %q, got %q", part, s)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent("shop-service"); got != "shop-service/"+Version() {
		t.Errorf("unexpected user agent %q", got)
	}
}
