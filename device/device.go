// Package device offloads the legacy deformation's inverse distance
// weighting to an OCCA device.
package device

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/notargets/meshmotion/utils"
)

// Backends tried, in order, when no device properties are configured
var Backends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// NewDevice creates the device described by props, falling back to the
// default backends when props is empty or cannot be created. The choice is
// logged to the logger carried by ctx.
func NewDevice(ctx context.Context, props string) (*gocca.OCCADevice, error) {
	candidates := Backends
	if props != "" {
		candidates = append([]string{props}, Backends...)
	}
	var last error
	for _, p := range candidates {
		device, err := gocca.NewDevice(p)
		if err == nil {
			utils.Logger(ctx).Debug("created device", "mode", device.Mode())
			return device, nil
		}
		last = err
	}
	return nil, fmt.Errorf("no OCCA device could be created: %w", last)
}

const idwSource = `
@kernel void idw(const long nTarget,
                 const long nSource,
                 const long dim,
                 const double power,
                 const double *targets,
                 const double *sources,
                 const double *values,
                 double *out) {
  for (long b = 0; b < nTarget; b += 64; @outer) {
    for (long i = b; i < b + 64; ++i; @inner) {
      if (i < nTarget) {
        double acc[3] = {0, 0, 0};
        double wsum = 0;
        long exact = -1;
        for (long j = 0; j < nSource; ++j) {
          double r2 = 0;
          for (long d = 0; d < dim; ++d) {
            const double dx = targets[i*dim + d] - sources[j*dim + d];
            r2 += dx*dx;
          }
          const double r = sqrt(r2);
          if (r < 1e-14) {
            exact = j;
            break;
          }
          const double w = pow(r, -power);
          wsum += w;
          for (long d = 0; d < dim; ++d) {
            acc[d] += w*values[j*dim + d];
          }
        }
        for (long d = 0; d < dim; ++d) {
          if (exact >= 0) {
            out[i*dim + d] = values[exact*dim + d];
          } else if (nSource > 0) {
            out[i*dim + d] = acc[d]/wsum;
          } else {
            out[i*dim + d] = 0;
          }
        }
      }
    }
  }
}
`

// IDWKernel evaluates inverse distance weighting on a device, one work item
// per target point
type IDWKernel struct {
	Device *gocca.OCCADevice
	kernel *gocca.OCCAKernel
}

// NewIDWKernel compiles the interpolation kernel on device
func NewIDWKernel(device *gocca.OCCADevice) (*IDWKernel, error) {
	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if device.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = device.BuildKernelFromString(idwSource, "idw", props)
	} else {
		kernel, err = device.BuildKernelFromString(idwSource, "idw", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel idw: %w", err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for idw")
	}
	return &IDWKernel{Device: device, kernel: kernel}, nil
}

// Interpolate implements the legacy deformation's interpolator
func (k *IDWKernel) Interpolate(targets, sources, values [][]float64, power float64) ([][]float64, error) {
	if len(sources) != len(values) {
		return nil, fmt.Errorf("idw: %d sources with %d values", len(sources), len(values))
	}
	if len(targets) == 0 {
		return nil, nil
	}
	dim := len(targets[0])
	if dim > 3 {
		return nil, fmt.Errorf("idw: dimension %d", dim)
	}

	t := flatten(targets, dim)
	s := flatten(sources, dim)
	v := flatten(values, dim)
	out := make([]float64, len(t))

	tMem := k.malloc(t)
	defer tMem.Free()
	sMem := k.malloc(s)
	defer sMem.Free()
	vMem := k.malloc(v)
	defer vMem.Free()
	oMem := k.Device.Malloc(int64(len(out)*8), nil, nil)
	defer oMem.Free()

	if err := k.kernel.RunWithArgs(int64(len(targets)), int64(len(sources)), int64(dim), power,
		tMem, sMem, vMem, oMem); err != nil {
		return nil, fmt.Errorf("kernel execution failed: %w", err)
	}
	k.Device.Finish()
	oMem.CopyTo(unsafe.Pointer(&out[0]), int64(len(out)*8))

	res := make([][]float64, len(targets))
	for i := range res {
		res[i] = out[i*dim : (i+1)*dim]
	}
	return res, nil
}

// malloc allocates device memory initialised with data; empty data still
// gets one value so the kernel sees a valid pointer
func (k *IDWKernel) malloc(data []float64) *gocca.OCCAMemory {
	if len(data) == 0 {
		data = []float64{0}
	}
	return k.Device.Malloc(int64(len(data)*8), unsafe.Pointer(&data[0]), nil)
}

// Free releases the kernel; the device stays with its owner
func (k *IDWKernel) Free() {
	if k.kernel != nil {
		k.kernel.Free()
		k.kernel = nil
	}
}

func flatten(v [][]float64, dim int) []float64 {
	flat := make([]float64, 0, len(v)*dim)
	for _, x := range v {
		flat = append(flat, x[:dim]...)
	}
	return flat
}
