package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionV1 = 1

// Encode serializes a Record into the fixed-prefix binary layout consumed by
// the rotation script: version byte, 32-byte secret hash, big-endian expiry,
// big-endian creation time, then the length-prefixed username. The hash and
// expiry sit at fixed offsets so the Lua side compares them without parsing
// any variable-length field.
func Encode(r *Record) ([]byte, error) {
	if len(r.Username) == 0 || len(r.Username) > 255 {
		return nil, errors.New("invalid username length")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionV1)
	buf.Write(r.SecretHash[:])

	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(r.Username)))
	buf.WriteString(r.Username)

	return buf.Bytes(), nil
}

// Decode parses a binary record blob. The TokenID is not part of the blob;
// callers set it from the key they fetched.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	r := &Record{}
	if _, err := io.ReadFull(reader, r.SecretHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}

	nameLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(reader, name); err != nil {
		return nil, err
	}
	r.Username = string(name)

	return r, nil
}
