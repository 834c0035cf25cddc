package frames

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
)

const (
	frameSeq    = "1"
	frameSuffix = "endframe"

	// JPEGQuality matches the quality the live view was tuned with.
	JPEGQuality = 95
)

var ErrBadPayload = errors.New("undecodable frame payload")

// EncodeFrame returns img as "1_<base64 jpeg>_endframe". The frame is always
// sent whole, so the sequence number is always 1.
func EncodeFrame(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return frameSeq + "_" + base64.StdEncoding.EncodeToString(buf.Bytes()) + "_" + frameSuffix, nil
}

// DecodeFramePayload returns the JPEG bytes carried by payload. It accepts
// raw JPEG, the framed "<seq>_<base64>_endframe" form, and bare base64.
func DecodeFramePayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrBadPayload
	}
	if bytes.HasPrefix(payload, []byte{0xFF, 0xD8}) {
		return payload, nil
	}
	text := string(payload)
	b64 := text
	if parts := strings.Split(text, "_"); parts[len(parts)-1] == frameSuffix {
		b64 = ""
		if len(parts) >= 3 {
			b64 = parts[1]
		}
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(data) == 0 {
		return nil, ErrBadPayload
	}
	return data, nil
}

// DecodeFrame decodes payload to an image.
func DecodeFrame(payload []byte) (image.Image, error) {
	data, err := DecodeFramePayload(payload)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return img, nil
}
