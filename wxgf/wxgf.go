package wxgf

import (
	"strconv"

	"github.com/YoshihikoAbe/wxmedia/sniff"
	"github.com/rs/zerolog/log"
)

type wxgfError string

func (e wxgfError) Error() string {
	return "wxmedia/wxgf: " + string(e)
}

const (
	// ErrUnavailable is returned when no native decoder could be loaded.
	ErrUnavailable = wxgfError("decoder unavailable")

	ErrUndecodable = wxgfError("no decoder mode produced an image")

	// MaxOutputSize is the size of the buffer handed to the decoder.
	MaxOutputSize = 52 << 20
)

// Modes are the decoder modes tried, in order.
var Modes = []int{0, 3}

// A Decoder converts a vendor compressed image into a standard format.
type Decoder interface {
	Decode(payload []byte, mode int) ([]byte, error)
}

// Convert runs payload through d with each of Modes until the output starts
// with an image signature.
func Convert(d Decoder, payload []byte) ([]byte, error) {
	if d == nil {
		return nil, ErrUnavailable
	}
	if !sniff.IsWxgf(payload) {
		return nil, wxgfError("payload does not start with the wxgf marker")
	}

	for _, mode := range Modes {
		out, err := d.Decode(payload, mode)
		if err != nil {
			log.Debug().Err(err).Int("mode", mode).Msg("wxgf decode failed")
			continue
		}
		if sniff.ImageType(out) != "" {
			return out, nil
		}
		log.Debug().Int("mode", mode).Int("size", len(out)).Msg("wxgf decode produced no image")
	}
	return nil, ErrUndecodable
}

type decodeError int64

func (e decodeError) Error() string {
	return "wxmedia/wxgf: decoder returned " + strconv.FormatInt(int64(e), 10)
}
