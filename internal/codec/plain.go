package codec

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// PlainCodec handles plain text documents. Decode applies UTF-8 with a
// Latin-1 fallback, so arbitrary single-byte content never fails to decode;
// Encode is the identity since plain text needs no structural reassembly.
type PlainCodec struct{}

func (*PlainCodec) Format() Format { return FormatPlain }

func (*PlainCodec) Decode(data []byte) (*Document, error) {
	text := string(data)
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			// Latin-1 maps every byte; this path is unreachable in
			// practice but kept for the decoder contract.
			return nil, err
		}
		text = string(decoded)
	}
	return &Document{Text: text, Format: FormatPlain}, nil
}

func (*PlainCodec) Encode(translated string, _ *Document) ([]byte, error) {
	return []byte(translated), nil
}
