package device

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/notargets/meshmotion/deform"
	"github.com/notargets/meshmotion/utils"
)

func TestIDWKernelMatchesHost(t *testing.T) {
	device, err := NewDevice(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	defer device.Free()

	kernel, err := NewIDWKernel(device)
	if err != nil {
		t.Fatalf("Failed to build kernel: %v", err)
	}
	defer kernel.Free()

	var targets, sources, values [][]float64
	for i := 0; i < 150; i++ {
		x := float64(i) / 150
		targets = append(targets, []float64{x, math.Sin(3 * x), 0.5})
	}
	for j := 0; j < 40; j++ {
		y := float64(j) / 40
		sources = append(sources, []float64{y, 1 - y, math.Cos(y)})
		values = append(values, []float64{0.1 * y, -0.2 * y, 0.05})
	}
	// One target sits on a source
	targets[7] = append([]float64(nil), sources[3]...)

	got, err := kernel.Interpolate(targets, sources, values, 3)
	if err != nil {
		t.Fatalf("Interpolate failed: %v", err)
	}
	want, _ := deform.HostIDW{}.Interpolate(targets, sources, values, 3)
	for i := range want {
		for d := range want[i] {
			if math.Abs(got[i][d]-want[i][d]) > 1e-12 {
				t.Errorf("target %d component %d: device %g, host %g", i, d, got[i][d], want[i][d])
			}
		}
	}
	for d := range values[3] {
		if got[7][d] != values[3][d] {
			t.Errorf("coincident target component %d: got %g, want %g", d, got[7][d], values[3][d])
		}
	}
}

func TestNewDeviceFallsBack(t *testing.T) {
	var buf bytes.Buffer
	ctx := utils.WithLogger(context.Background(), utils.NewLogger(&buf, true).With("rank", 3))
	device, err := NewDevice(ctx, `{"mode": "NoSuchBackend"}`)
	if err != nil {
		t.Fatalf("expected a fallback device, got %v", err)
	}
	defer device.Free()
	if device.Mode() == "" {
		t.Errorf("device has no mode")
	}
	// The choice goes to the caller's logger, not the process default
	line := buf.String()
	if !strings.Contains(line, `"msg":"created device"`) || !strings.Contains(line, `"rank":3`) {
		t.Errorf("device creation not logged through the context logger: %q", line)
	}
}
