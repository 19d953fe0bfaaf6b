package dsb

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// Encode prepares text for the remote protocol: UTF-8 bytes, gzip, then
// standard base64.
func Encode(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: input is not valid UTF-8", model.ErrCodec)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("%w: compress: %v", model.ErrCodec, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%w: compress: %v", model.ErrCodec, err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode inverts Encode. Unpadded tokens are accepted.
func Decode(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		var rawErr error
		raw, rawErr = base64.RawStdEncoding.DecodeString(token)
		if rawErr != nil {
			return "", fmt.Errorf("%w: base64: %v", model.ErrCodec, err)
		}
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: decompress: %v", model.ErrCodec, err)
	}
	defer zr.Close()

	plain, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("%w: decompress: %v", model.ErrCodec, err)
	}

	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", model.ErrCodec)
	}

	return string(plain), nil
}
