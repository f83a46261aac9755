//go:build !vosk

package recognizer

// NativeAvailable reports whether the vosk backend is compiled in.
func NativeAvailable() bool { return false }

// NewVoskModel returns ErrNativeUnavailable when the vosk backend is not built.
func NewVoskModel(path string) (Model, error) {
	return nil, ErrNativeUnavailable
}
