package container

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sagerenn/lexis/internal/dict"
)

const maxID = math.MaxUint32

func idBytes(id int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

// indexKey is the folded key followed by a NUL and the big-endian id, so that
// equal folded keys keep insertion order and shorter keys sort first.
func indexKey(key string, id int) []byte {
	folded := dict.Fold(key)
	k := make([]byte, 0, len(folded)+5)
	k = append(k, folded...)
	k = append(k, 0)
	return append(k, idBytes(id)...)
}

// A record is uvarint(len key) key uvarint(len type) type content.
func encodeBlob(key, contentType string, content []byte) []byte {
	buf := make([]byte, 0, len(key)+len(contentType)+len(content)+2*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	buf = binary.AppendUvarint(buf, uint64(len(contentType)))
	buf = append(buf, contentType...)
	return append(buf, content...)
}

// decodeBlob copies out of raw, which is only valid inside the transaction.
func decodeBlob(id int, raw []byte) (dict.Blob, error) {
	if raw == nil {
		return dict.Blob{}, fmt.Errorf("%w: blob %d missing", dict.ErrFormat, id)
	}
	key, rest, err := readField(raw)
	if err != nil {
		return dict.Blob{}, fmt.Errorf("blob %d: %w", id, err)
	}
	ct, rest, err := readField(rest)
	if err != nil {
		return dict.Blob{}, fmt.Errorf("blob %d: %w", id, err)
	}
	content := make([]byte, len(rest))
	copy(content, rest)
	return dict.Blob{ID: id, Key: string(key), ContentType: string(ct), Content: content}, nil
}

func readField(b []byte) ([]byte, []byte, error) {
	n, sz := binary.Uvarint(b)
	if sz <= 0 || uint64(len(b)-sz) < n {
		return nil, nil, fmt.Errorf("%w: truncated record", dict.ErrFormat)
	}
	end := sz + int(n)
	return b[sz:end], b[end:], nil
}
