//go:build !windows && !linux

package memscan

func OpenProcess(pid int32) (Process, error) {
	return nil, ErrUnsupported
}
