package od

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

var edsSectionRegexp = regexp.MustCompile(`(?i)^([0-9a-f]{4})(sub([0-9a-f]+))?$`)

// LoadEDS parses an electronic data sheet. source is a file path, []byte or
// io.Reader, as accepted by ini.Load. nodeID replaces $NODEID in default
// values.
func LoadEDS(source interface{}, nodeID uint8) (*ObjectDictionary, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         false,
		IgnoreInlineComment: true,
	}, source)
	if err != nil {
		return nil, errors.Annotate(err, "load eds")
	}

	dic := New()
	type subSection struct {
		index    uint16
		subIndex uint8
		section  *ini.Section
	}
	var subs []subSection

	for _, section := range file.Sections() {
		m := edsSectionRegexp.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		index, _ := strconv.ParseUint(m[1], 16, 16)
		if m[2] != "" {
			si, err := strconv.ParseUint(m[3], 16, 8)
			if err != nil {
				return nil, errors.NotValidf("eds section %q", section.Name())
			}
			subs = append(subs, subSection{uint16(index), uint8(si), section})
			continue
		}

		code, err := parseEDSUint(section.Key("ObjectType").MustString("0x7"), 8)
		if err != nil {
			return nil, errors.Annotatef(err, "section %s ObjectType", section.Name())
		}
		dataType, err := parseEDSUint(section.Key("DataType").MustString("0"), 16)
		if err != nil {
			return nil, errors.Annotatef(err, "section %s DataType", section.Name())
		}
		obj := NewObject(uint16(index), section.Key("ParameterName").String(), ObjectCode(code), DataType(dataType))
		if obj.Code == ObjectCodeVar || obj.Code == ObjectCodeDomain {
			entry, value, err := parseEDSEntry(section, 0, nodeID)
			if err != nil {
				return nil, err
			}
			obj.AddEntry(entry, value)
		}
		if err := dic.Add(obj); err != nil {
			return nil, err
		}
	}

	for _, sub := range subs {
		obj := dic.Object(sub.index)
		if obj == nil {
			return nil, errors.NotFoundf("object 0x%04X for section %s", sub.index, sub.section.Name())
		}
		entry, value, err := parseEDSEntry(sub.section, sub.subIndex, nodeID)
		if err != nil {
			return nil, err
		}
		obj.AddEntry(entry, value)
	}
	return dic, nil
}

func parseEDSEntry(section *ini.Section, subIndex uint8, nodeID uint8) (Entry, []byte, error) {
	dataType, err := parseEDSUint(section.Key("DataType").MustString("0"), 16)
	if err != nil {
		return Entry{}, nil, errors.Annotatef(err, "section %s DataType", section.Name())
	}
	entry := Entry{
		SubIndex:   subIndex,
		Name:       section.Key("ParameterName").String(),
		DataType:   DataType(dataType),
		Attributes: parseAccessType(section.Key("AccessType").String()),
	}
	if section.Key("PDOMapping").MustString("0") == "1" {
		entry.Attributes |= AttrRxMap | AttrTxMap
	}

	raw := section.Key("DefaultValue").String()
	if strings.Contains(raw, "$NODEID") {
		raw = strings.NewReplacer("$NODEID+", "", "+$NODEID", "", "$NODEID", "0").Replace(raw)
		v, err := parseEDSUint(raw, 64)
		if err != nil {
			return Entry{}, nil, errors.Annotatef(err, "section %s DefaultValue", section.Name())
		}
		raw = strconv.FormatUint(v+uint64(nodeID), 10)
	}

	if entry.DataType.VariableLength() {
		value, err := ParseValue(entry.DataType, raw)
		if err != nil {
			value = nil
		}
		return entry, value, nil
	}
	if raw == "" {
		return entry, make([]byte, entry.DataType.Size()), nil
	}
	value, err := ParseValue(entry.DataType, raw)
	if err != nil {
		return Entry{}, nil, errors.Annotatef(err, "section %s DefaultValue", section.Name())
	}
	return entry, value, nil
}

func parseEDSUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, bits)
}

func parseAccessType(s string) Attributes {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ro", "const":
		return AttrRead
	case "wo":
		return AttrWrite
	case "rw", "rwr", "rww":
		return AttrRW
	}
	return 0
}
