package invoker

import (
	"net/http"
	"testing"

	logx "xpost/pkg/logx"
)

func TestDebugServerServesIndex(t *testing.T) {
	t.Parallel()
	d, err := StartDebugServer("127.0.0.1:0", logx.Nop())
	if err != nil {
		t.Fatalf("StartDebugServer: %v", err)
	}

	resp, err := http.Get("http://" + d.Addr() + "/debug/pprof/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	d.Stop()
	if _, err := http.Get("http://" + d.Addr() + "/debug/pprof/"); err == nil {
		t.Fatal("debug server still answering after Stop")
	}
}
