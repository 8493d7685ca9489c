package chain

import (
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// Decoder turns raw account data into a typed value. ok is false for layouts
// the decoder does not handle, those updates are skipped.
type Decoder interface {
	Decode(update AccountUpdate) (decoded DecodedAccount, ok bool, err error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(update AccountUpdate) (DecodedAccount, bool, error)

func (f DecoderFunc) Decode(update AccountUpdate) (DecodedAccount, bool, error) {
	return f(update)
}

// RawDecoder passes every update through with its bytes as value.
type RawDecoder struct{}

func (RawDecoder) Decode(update AccountUpdate) (DecodedAccount, bool, error) {
	return DecodedAccount{Update: update, Layout: "raw", Value: update.Data}, true, nil
}

// SizeDecoder routes updates to a layout by data length, the way program
// account variants are usually told apart.
type SizeDecoder struct {
	layouts map[int]string
}

// NewSizeDecoder maps data sizes to layout names.
func NewSizeDecoder(layouts map[int]string) *SizeDecoder {
	return &SizeDecoder{layouts: layouts}
}

func (d *SizeDecoder) Decode(update AccountUpdate) (DecodedAccount, bool, error) {
	if len(update.Data) == 0 {
		return DecodedAccount{}, false, errors.Wrap(exception.ErrAccountDecode, "empty data").With("pubkey", update.Pubkey)
	}
	layout, ok := d.layouts[len(update.Data)]
	if !ok {
		return DecodedAccount{}, false, nil
	}
	return DecodedAccount{Update: update, Layout: layout, Value: update.Data}, true, nil
}
