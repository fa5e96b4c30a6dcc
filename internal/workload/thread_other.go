//go:build !linux

package workload

// osThreadID is not available on this platform.
func osThreadID() int {
	return 0
}
