package jsoncodec

import (
	"errors"
	"io"

	"github.com/bytedance/sonic"
)

// ErrEmptyBody is returned by Decode when the reader holds no JSON value.
var ErrEmptyBody = errors.New("jsoncodec: empty body")

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// Decode reads a single JSON value from r into v.
func Decode(r io.Reader, v any) error {
	if r == nil {
		return ErrEmptyBody
	}
	err := defaultConfig.NewDecoder(r).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}
