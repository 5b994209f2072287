//go:build !windows

package wxgf

// Load always fails: the native decoder only exists for Windows.
func Load(path string) (Decoder, error) {
	return nil, ErrUnavailable
}
