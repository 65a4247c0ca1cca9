package envelope

import (
	"encoding/binary"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Video wraps one of the four formats named in base §4.C.
type Video struct {
	Kind     ContentType // TypeMP4, TypeMOV, TypeMKV, or TypeAVI
	Payload  []byte
	Metadata VideoMetadata
}

// VideoMetadata holds duration derived from the container's movie
// header where we can parse one.
type VideoMetadata struct {
	DurationMillis int64
}

var _ Envelope = Video{}

func (v Video) ContentType() ContentType { return v.Kind }

func (v Video) CodecCode() uint64 {
	switch v.Kind {
	case TypeMP4:
		return 0x630001
	case TypeMOV:
		return 0x630002
	case TypeMKV:
		return 0x630003
	case TypeAVI:
		return 0x630004
	default:
		return 0
	}
}

func (v Video) CanonicalBytes() ([]byte, error) {
	if err := VerifyMagic(v.Payload, v.Kind); err != nil {
		return nil, err
	}
	return v.Payload, nil
}

// NewVideo detects the video kind, verifies magic bytes where
// applicable, and extracts duration best-effort.
func NewVideo(data []byte, nameHint string) (Video, error) {
	kind := Detect(data, nameHint)
	switch kind {
	case TypeMP4, TypeMOV, TypeMKV, TypeAVI:
	default:
		return Video{}, &cimerr.InvalidContentError{Detail: "not a recognized video format"}
	}
	if err := VerifyMagic(data, kind); err != nil {
		return Video{}, err
	}
	return Video{Kind: kind, Payload: data, Metadata: ExtractVideoMetadata(data, kind)}, nil
}

// ExtractVideoMetadata walks top-level ISO-BMFF atoms (shared by MP4
// and MOV) to find moov/mvhd and read its timescale/duration fields.
// MKV (EBML) and AVI (RIFF/AVI chunks) are not demuxed here; they
// return a zero-value result.
func ExtractVideoMetadata(data []byte, kind ContentType) VideoMetadata {
	if kind != TypeMP4 && kind != TypeMOV {
		return VideoMetadata{}
	}
	moov, ok := findAtom(data, "moov")
	if !ok {
		return VideoMetadata{}
	}
	mvhd, ok := findAtom(moov, "mvhd")
	if !ok || len(mvhd) < 20 {
		return VideoMetadata{}
	}
	version := mvhd[0]
	var timescale uint32
	var duration uint64
	if version == 1 {
		if len(mvhd) < 32 {
			return VideoMetadata{}
		}
		timescale = binary.BigEndian.Uint32(mvhd[20:24])
		duration = binary.BigEndian.Uint64(mvhd[24:32])
	} else {
		timescale = binary.BigEndian.Uint32(mvhd[12:16])
		duration = uint64(binary.BigEndian.Uint32(mvhd[16:20]))
	}
	if timescale == 0 {
		return VideoMetadata{}
	}
	return VideoMetadata{DurationMillis: int64(duration) * 1000 / int64(timescale)}
}

// findAtom searches the boxes of data in order for one named fourCC,
// returning its body (sans the 8-byte size+type header). It descends
// into moov, trak and mdia container boxes at any depth before moving
// on to the next sibling.
func findAtom(data []byte, fourCC string) ([]byte, bool) {
	pos := 0
	for pos+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		name := string(data[pos+4 : pos+8])
		if size < 8 || pos+size > len(data) {
			break
		}
		body := data[pos+8 : pos+size]
		if name == fourCC {
			return body, true
		}
		if name == "moov" || name == "trak" || name == "mdia" {
			if found, ok := findAtom(body, fourCC); ok {
				return found, true
			}
		}
		pos += size
	}
	return nil, false
}
