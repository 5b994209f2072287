package wxgf

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

const procName = "wxam_dec_wxam2pic_5"

type config struct {
	mode     int32
	reserved int32
}

type dllDecoder struct {
	proc *windows.LazyProc
}

// Load binds the decoder exported by the DLL at path.
func Load(path string) (Decoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrUnavailable
	}
	proc := windows.NewLazyDLL(path).NewProc(procName)
	if err := proc.Find(); err != nil {
		return nil, err
	}
	return &dllDecoder{proc: proc}, nil
}

func (d *dllDecoder) Decode(payload []byte, mode int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, wxgfError("empty payload")
	}
	out := make([]byte, MaxOutputSize)
	size := int32(len(out))
	cfg := config{mode: int32(mode)}

	r, _, _ := d.proc.Call(
		uintptr(unsafe.Pointer(&payload[0])),
		uintptr(len(payload)),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&cfg)),
	)
	if r != 0 {
		return nil, decodeError(int64(r))
	}
	if size <= 0 || int(size) > len(out) {
		return nil, wxgfError("decoder returned an invalid size")
	}
	return out[:size], nil
}
