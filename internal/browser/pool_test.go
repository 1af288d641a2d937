package browser

import (
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
)

func TestPool_InvalidConfiguration(t *testing.T) {
	logger := arbor.NewLogger()
	p := newPool(common.BrowserConfig{MaxInstances: 0, Headless: true}, logger)

	// MaxInstances <= 0 is normalized to 1 rather than rejected, unlike the
	// teacher's crawler pool — a zero-instance automation node would never
	// be able to run a job, so defaulting is safer than a startup failure.
	if err := p.init(); err != nil {
		t.Fatalf("expected default instance count to allow init, got: %v", err)
	}
	p.shutdown()
}

func TestPool_RoundRobinAllocation(t *testing.T) {
	logger := arbor.NewLogger()
	p := newPool(common.BrowserConfig{MaxInstances: 2, Headless: true, DisableGPU: true, NoSandbox: true}, logger)
	defer p.shutdown()

	ctx1, err := p.acquire()
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	ctx2, err := p.acquire()
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if ctx1 == ctx2 {
		t.Error("round-robin allocation should return different browser contexts")
	}
}
