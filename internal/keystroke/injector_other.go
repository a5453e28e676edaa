//go:build !darwin && !linux && !windows

package keystroke

func platformAvailable() (bool, string) {
	return false, "keystroke injection not implemented for this platform"
}

func openDevice() (device, error) {
	return nil, ErrNotAvailable
}
