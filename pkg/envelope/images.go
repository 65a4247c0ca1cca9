package envelope

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Image wraps one of the four raster formats named in base §4.C.
type Image struct {
	Kind     ContentType // TypeJPEG, TypePNG, TypeGIF, or TypeWebP
	Payload  []byte
	Metadata ImageMetadata
}

// ImageMetadata holds dimensions extracted best-effort at wrap time.
type ImageMetadata struct {
	Width  int
	Height int
}

var _ Envelope = Image{}

func (i Image) ContentType() ContentType { return i.Kind }

func (i Image) CodecCode() uint64 {
	switch i.Kind {
	case TypeJPEG:
		return 0x610001
	case TypePNG:
		return 0x610002
	case TypeGIF:
		return 0x610003
	case TypeWebP:
		return 0x610004
	default:
		return 0
	}
}

func (i Image) CanonicalBytes() ([]byte, error) {
	if err := VerifyMagic(i.Payload, i.Kind); err != nil {
		return nil, err
	}
	return i.Payload, nil
}

// NewImage detects the image's kind, verifies magic bytes, and
// extracts dimensions best-effort (a decode failure is not fatal: the
// envelope is still usable with a zero-value Metadata).
func NewImage(data []byte, nameHint string) (Image, error) {
	kind := Detect(data, nameHint)
	switch kind {
	case TypeJPEG, TypePNG, TypeGIF, TypeWebP:
	default:
		return Image{}, &cimerr.InvalidContentError{Detail: "not a recognized image format"}
	}
	if err := VerifyMagic(data, kind); err != nil {
		return Image{}, err
	}
	return Image{Kind: kind, Payload: data, Metadata: ExtractImageMetadata(data, kind)}, nil
}

// ExtractImageMetadata decodes just the dimensions of an image. It
// never returns an error: a format stdlib can't decode (WebP lossless
// extended headers we don't recognize) yields a zero-value result.
func ExtractImageMetadata(data []byte, kind ContentType) ImageMetadata {
	if kind == TypeWebP {
		if w, h, ok := decodeWebPDimensions(data); ok {
			return ImageMetadata{Width: w, Height: h}
		}
		return ImageMetadata{}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageMetadata{}
	}
	return ImageMetadata{Width: cfg.Width, Height: cfg.Height}
}

// decodeWebPDimensions reads the VP8X extended-header chunk, which
// carries 24-bit little-endian width-1/height-1 fields. Lossy (VP8)
// and lossless (VP8L) bitstream headers are not parsed.
func decodeWebPDimensions(data []byte) (width, height int, ok bool) {
	const riffHeaderLen = 12
	if len(data) < riffHeaderLen+8 {
		return 0, 0, false
	}
	chunk := data[riffHeaderLen:]
	if string(chunk[0:4]) != "VP8X" {
		return 0, 0, false
	}
	payload := chunk[8:]
	if len(payload) < 10 {
		return 0, 0, false
	}
	w := uint32(payload[4]) | uint32(payload[5])<<8 | uint32(payload[6])<<16
	h := uint32(payload[7]) | uint32(payload[8])<<8 | uint32(payload[9])<<16
	return int(w) + 1, int(h) + 1, true
}
