package od

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/juju/errors"
)

// ParseValue converts the textual representation of a value of type dt into
// its little endian CANopen encoding. Integers accept decimal and 0x-prefixed
// hex, booleans TRUE/FALSE/1/0, octet strings and domains a hex byte list.
func ParseValue(dt DataType, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch dt {
	case Boolean:
		switch strings.ToUpper(s) {
		case "TRUE", "1":
			return []byte{1}, nil
		case "FALSE", "0":
			return []byte{0}, nil
		}
		return nil, errors.NotValidf("boolean %q", s)

	case Integer8, Integer16, Integer32, Integer64:
		bits := dt.Size() * 8
		v, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			return nil, errors.NotValidf("%s %q", dt, s)
		}
		return putUint(dt.Size(), uint64(v)), nil

	case Unsigned8, Unsigned16, Unsigned32, Unsigned64:
		bits := dt.Size() * 8
		v, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return nil, errors.NotValidf("%s %q", dt, s)
		}
		return putUint(dt.Size(), v), nil

	case Real32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, errors.NotValidf("%s %q", dt, s)
		}
		return putUint(4, uint64(math.Float32bits(float32(v)))), nil

	case Real64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NotValidf("%s %q", dt, s)
		}
		return putUint(8, math.Float64bits(v)), nil

	case VisibleString:
		return []byte(s), nil

	case UnicodeString:
		var out []byte
		for _, u := range utf16.Encode([]rune(s)) {
			out = append(out, byte(u), byte(u>>8))
		}
		return out, nil

	case OctetString, Domain:
		b, err := hex.DecodeString(strings.NewReplacer(" ", "", ",", "").Replace(s))
		if err != nil {
			return nil, errors.NotValidf("hex data %q", s)
		}
		return b, nil
	}
	return nil, errors.NotSupportedf("data type %s", dt)
}

func putUint(size int, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:size]
}

func getUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// FormatValue renders data of type dt for humans. Data whose length does not
// fit a fixed size type is rendered as hex.
func FormatValue(dt DataType, data []byte) string {
	if size := dt.Size(); size != 0 && len(data) != size {
		return fmt.Sprintf("(%d bytes) % X", len(data), data)
	}
	switch dt {
	case Boolean:
		if data[0] != 0 {
			return "TRUE"
		}
		return "FALSE"
	case Integer8:
		return strconv.FormatInt(int64(int8(data[0])), 10)
	case Integer16:
		return strconv.FormatInt(int64(int16(getUint(data))), 10)
	case Integer32:
		return strconv.FormatInt(int64(int32(getUint(data))), 10)
	case Integer64:
		return strconv.FormatInt(int64(getUint(data)), 10)
	case Unsigned8, Unsigned16, Unsigned32, Unsigned64:
		v := getUint(data)
		return fmt.Sprintf("%d (0x%0*X)", v, len(data)*2, v)
	case Real32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(getUint(data)))), 'g', -1, 32)
	case Real64:
		return strconv.FormatFloat(math.Float64frombits(getUint(data)), 'g', -1, 64)
	case VisibleString:
		return strconv.Quote(strings.TrimRight(string(data), "\x00"))
	case UnicodeString:
		u := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			u = append(u, uint16(data[i])|uint16(data[i+1])<<8)
		}
		return strconv.Quote(string(utf16.Decode(u)))
	}
	return fmt.Sprintf("% X", data)
}
