package envelope

import (
	"encoding/binary"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Audio wraps one of the five formats named in base §4.C.
type Audio struct {
	Kind     ContentType // TypeMP3, TypeWAV, TypeFLAC, TypeAAC, or TypeOGG
	Payload  []byte
	Metadata AudioMetadata
}

// AudioMetadata carries fields extractable from fixed-layout headers.
// Fields that could not be determined are left at zero.
type AudioMetadata struct {
	SampleRateHz int
	Channels     int
	BitsPerSample int // WAV/FLAC only
}

var _ Envelope = Audio{}

func (a Audio) ContentType() ContentType { return a.Kind }

func (a Audio) CodecCode() uint64 {
	switch a.Kind {
	case TypeMP3:
		return 0x620001
	case TypeWAV:
		return 0x620002
	case TypeFLAC:
		return 0x620003
	case TypeAAC:
		return 0x620004
	case TypeOGG:
		return 0x620005
	default:
		return 0
	}
}

func (a Audio) CanonicalBytes() ([]byte, error) {
	if err := VerifyMagic(a.Payload, a.Kind); err != nil {
		return nil, err
	}
	return a.Payload, nil
}

// NewAudio detects the audio kind, verifies magic bytes where the
// format requires them, and extracts metadata best-effort.
func NewAudio(data []byte, nameHint string) (Audio, error) {
	kind := Detect(data, nameHint)
	switch kind {
	case TypeMP3, TypeWAV, TypeFLAC, TypeAAC, TypeOGG:
	default:
		return Audio{}, &cimerr.InvalidContentError{Detail: "not a recognized audio format"}
	}
	if err := VerifyMagic(data, kind); err != nil {
		return Audio{}, err
	}
	return Audio{Kind: kind, Payload: data, Metadata: ExtractAudioMetadata(data, kind)}, nil
}

// ExtractAudioMetadata inspects the fixed-layout headers we know how
// to parse (WAV fmt chunk, FLAC STREAMINFO, MP3 frame header) and
// returns a zero-value result for formats whose metadata requires full
// bitstream demuxing (AAC ADTS frames, OGG page chaining).
func ExtractAudioMetadata(data []byte, kind ContentType) AudioMetadata {
	switch kind {
	case TypeWAV:
		return extractWAVMetadata(data)
	case TypeFLAC:
		return extractFLACMetadata(data)
	case TypeMP3:
		return extractMP3Metadata(data)
	default:
		return AudioMetadata{}
	}
}

// extractWAVMetadata walks RIFF chunks looking for "fmt ", which holds
// channel count, sample rate, and bit depth at fixed offsets.
func extractWAVMetadata(data []byte) AudioMetadata {
	const riffHeaderLen = 12
	if len(data) < riffHeaderLen {
		return AudioMetadata{}
	}
	pos := riffHeaderLen
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if id == "fmt " && body+16 <= len(data) {
			channels := int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate := int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			return AudioMetadata{SampleRateHz: sampleRate, Channels: channels, BitsPerSample: bits}
		}
		pos = body + size + size%2 // chunks are word-aligned
	}
	return AudioMetadata{}
}

// extractFLACMetadata reads the mandatory STREAMINFO metadata block,
// which immediately follows the 4-byte "fLaC" marker.
func extractFLACMetadata(data []byte) AudioMetadata {
	const markerLen = 4
	const blockHeaderLen = 4
	if len(data) < markerLen+blockHeaderLen+18 {
		return AudioMetadata{}
	}
	block := data[markerLen+blockHeaderLen:]
	sampleRate := int(block[10])<<12 | int(block[11])<<4 | int(block[12])>>4
	channels := int((block[12]>>1)&0x7) + 1
	bitsPerSample := int((block[12]&0x1)<<4|block[13]>>4) + 1
	return AudioMetadata{SampleRateHz: sampleRate, Channels: channels, BitsPerSample: bitsPerSample}
}

var mp3SampleRates = [4][3]int{
	{44100, 48000, 32000}, // MPEG1
	{22050, 24000, 16000}, // MPEG2
	{11025, 12000, 8000},  // MPEG2.5
}

// extractMP3Metadata scans the whole buffer from byte 0 for the first
// frame header (sync word 0xFFE) with a valid version and sample-rate
// index, reading its version/sample-rate/channel-mode bit fields. An
// ID3 tag is not skipped, so a sync-like byte pair inside the tag is
// taken as the frame header.
func extractMP3Metadata(data []byte) AudioMetadata {
	for i := 0; i+4 <= len(data); i++ {
		if data[i] != 0xFF || data[i+1]&0xE0 != 0xE0 {
			continue
		}
		versionBits := (data[i+1] >> 3) & 0x3
		sampleRateIdx := (data[i+2] >> 2) & 0x3
		channelMode := (data[i+3] >> 6) & 0x3
		if sampleRateIdx == 3 {
			continue
		}
		var versionRow int
		switch versionBits {
		case 0x3:
			versionRow = 0 // MPEG1
		case 0x2:
			versionRow = 1 // MPEG2
		case 0x0:
			versionRow = 2 // MPEG2.5
		default:
			continue
		}
		channels := 2
		if channelMode == 0x3 {
			channels = 1
		}
		return AudioMetadata{SampleRateHz: mp3SampleRates[versionRow][sampleRateIdx], Channels: channels}
	}
	return AudioMetadata{}
}
