// Package device picks the compute device once at startup.
package device

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Kind names the class of compute device.
type Kind string

// CPU is the only supported device kind.
const CPU Kind = "cpu"

// Device describes where tensor work runs for the life of the process.
type Device struct {
	Kind     Kind
	Brand    string
	Vendor   string
	Physical int
	Logical  int
	// Threads bounds the goroutines a single tensor operation may fan out to.
	Threads  int
	AVX2     bool
	FMA3     bool
	AVX512F  bool
}

// Select inspects the host CPU. threads <= 0 means one per logical core.
func Select(threads int) Device {
	logical := cpuid.CPU.LogicalCores
	if logical <= 0 {
		logical = runtime.NumCPU()
	}
	physical := cpuid.CPU.PhysicalCores
	if physical <= 0 {
		physical = logical
	}
	if threads <= 0 || threads > logical {
		threads = logical
	}
	return Device{
		Kind:     CPU,
		Brand:    cpuid.CPU.BrandName,
		Vendor:   cpuid.CPU.VendorString,
		Physical: physical,
		Logical:  logical,
		Threads:  threads,
		AVX2:     cpuid.CPU.Supports(cpuid.AVX2),
		FMA3:     cpuid.CPU.Supports(cpuid.FMA3),
		AVX512F:  cpuid.CPU.Supports(cpuid.AVX512F),
	}
}

func (d Device) String() string {
	return fmt.Sprintf("%s brand=%q cores=%d/%d threads=%d avx2=%t fma3=%t avx512f=%t",
		d.Kind, d.Brand, d.Physical, d.Logical, d.Threads, d.AVX2, d.FMA3, d.AVX512F)
}
