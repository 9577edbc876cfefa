package gpu

import (
	"sync"

	"github.com/gogpu/gpucontext"
)

// The package-level provider lets the backend registry construct a
// Device without the caller threading a provider through device.Get.
// Applications that own their Device call New directly instead.
var (
	providerMu sync.RWMutex
	provider   any
)

// SetProvider installs the shared device provider used when the "gpu"
// backend is instantiated through the registry, typically a
// gpucontext.DeviceProvider from the host application. Pass nil to
// uninstall.
func SetProvider(p any) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// UseDeviceProvider installs a host application's shared device. The
// provider must also expose HAL access (HalDevice/HalQueue) for the
// backend to submit work; a gpucontext.HalProvider satisfies both.
func UseDeviceProvider(p gpucontext.DeviceProvider) error {
	if p == nil {
		return ErrNoProvider
	}
	if _, ok := any(p).(halProvider); !ok {
		return ErrNoProvider
	}
	SetProvider(p)
	return nil
}

func currentProvider() any {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider
}
