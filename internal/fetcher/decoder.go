package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// registered formats accepted by ImageDecoder
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

var errEmptyPayload = errors.New("empty payload")

// Decoder 校验字节是否为可用的 blob；返回错误即视为不可解码。
type Decoder interface {
	Decode(data []byte) error
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) error

// Decode makes DecoderFunc satisfy Decoder.
func (f DecoderFunc) Decode(data []byte) error {
	return f(data)
}

// ImageDecoder accepts payloads whose header decodes as a registered image
// format (png, jpeg, gif). Only the config block is parsed.
type ImageDecoder struct{}

// Decode implements Decoder.
func (ImageDecoder) Decode(data []byte) error {
	if len(data) == 0 {
		return errEmptyPayload
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

// AnyBytes accepts every non-empty payload.
var AnyBytes = DecoderFunc(func(data []byte) error {
	if len(data) == 0 {
		return errEmptyPayload
	}
	return nil
})
