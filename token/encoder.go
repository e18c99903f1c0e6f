package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordFormatVersionV1 = 1

var errRecordCorrupt = errors.New("token record corrupt")

func encodeRecord(t *Token) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionV1)
	buf.WriteByte(byte(t.Kind))
	buf.WriteByte(byte(t.Status))

	for _, s := range []string{t.ID, t.TenantID, t.StoreID, t.DeviceType, t.PackageID, t.ShortCode, t.LastConsumedBy, t.KeyVersion, t.Signature} {
		if len(s) > 255 {
			return nil, errors.New("token record field too long")
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}

	buf.Write(t.BearerHash[:])

	if err := binary.Write(&buf, binary.BigEndian, t.UsageLimit); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, t.UsageCount); err != nil {
		return nil, err
	}
	for _, v := range []int64{t.IssuedAt, t.ValidFrom, t.ExpiresAt, t.LastConsumedAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Token, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}
	if version != recordFormatVersionV1 {
		return nil, errRecordCorrupt
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}
	status, err := reader.ReadByte()
	if err != nil {
		return nil, errRecordCorrupt
	}

	t := &Token{
		Kind:   Kind(kind),
		Status: Status(status),
	}

	fields := []*string{&t.ID, &t.TenantID, &t.StoreID, &t.DeviceType, &t.PackageID, &t.ShortCode, &t.LastConsumedBy, &t.KeyVersion, &t.Signature}
	for _, field := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, errRecordCorrupt
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, errRecordCorrupt
		}
		*field = string(raw)
	}

	if _, err := io.ReadFull(reader, t.BearerHash[:]); err != nil {
		return nil, errRecordCorrupt
	}

	if err := binary.Read(reader, binary.BigEndian, &t.UsageLimit); err != nil {
		return nil, errRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &t.UsageCount); err != nil {
		return nil, errRecordCorrupt
	}
	for _, v := range []*int64{&t.IssuedAt, &t.ValidFrom, &t.ExpiresAt, &t.LastConsumedAt} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, errRecordCorrupt
		}
	}

	return t, nil
}
