package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.String() != Version {
		t.Fatalf("unexpected string: %s", info.String())
	}
}

func TestJSON(t *testing.T) {
	out, err := Info{Version: "v1.2.3", GoVersion: "go1.24", Platform: "linux/amd64"}.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["version"] != "v1.2.3" {
		t.Fatalf("unexpected json: %s", out)
	}
	if _, ok := decoded["commit"]; ok {
		t.Fatalf("empty commit should be omitted: %s", out)
	}
}

func TestTable(t *testing.T) {
	out := Info{Version: "v1.2.3", Commit: "abc", GoVersion: "go1.24", Platform: "linux/amd64"}.Table()
	for _, want := range []string{"version: v1.2.3", "commit: abc", "platform: linux/amd64"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "buildDate") {
		t.Fatalf("empty build date should be omitted:\n%s", out)
	}
}
