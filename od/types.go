package od

import "fmt"

// ObjectCode is the CiA 301 object code of a dictionary entry.
type ObjectCode uint8

const (
	ObjectCodeNull      ObjectCode = 0x00
	ObjectCodeDomain    ObjectCode = 0x02
	ObjectCodeDefType   ObjectCode = 0x05
	ObjectCodeDefStruct ObjectCode = 0x06
	ObjectCodeVar       ObjectCode = 0x07
	ObjectCodeArray     ObjectCode = 0x08
	ObjectCodeRecord    ObjectCode = 0x09
)

func (code ObjectCode) String() string {
	switch code {
	case ObjectCodeNull:
		return "NULL"
	case ObjectCodeDomain:
		return "DOMAIN"
	case ObjectCodeDefType:
		return "DEFTYPE"
	case ObjectCodeDefStruct:
		return "DEFSTRUCT"
	case ObjectCodeVar:
		return "VAR"
	case ObjectCodeArray:
		return "ARRAY"
	case ObjectCodeRecord:
		return "RECORD"
	}
	return fmt.Sprintf("ObjectCode(0x%02X)", uint8(code))
}

// DataType is the CiA 301 data type index.
type DataType uint16

const (
	Boolean       DataType = 0x0001
	Integer8      DataType = 0x0002
	Integer16     DataType = 0x0003
	Integer32     DataType = 0x0004
	Unsigned8     DataType = 0x0005
	Unsigned16    DataType = 0x0006
	Unsigned32    DataType = 0x0007
	Real32        DataType = 0x0008
	VisibleString DataType = 0x0009
	OctetString   DataType = 0x000A
	UnicodeString DataType = 0x000B
	Domain        DataType = 0x000F
	Real64        DataType = 0x0011
	Integer64     DataType = 0x0015
	Unsigned64    DataType = 0x001B
)

var dataTypeNames = map[DataType]string{
	Boolean:       "BOOLEAN",
	Integer8:      "INTEGER8",
	Integer16:     "INTEGER16",
	Integer32:     "INTEGER32",
	Unsigned8:     "UNSIGNED8",
	Unsigned16:    "UNSIGNED16",
	Unsigned32:    "UNSIGNED32",
	Real32:        "REAL32",
	VisibleString: "VISIBLE_STRING",
	OctetString:   "OCTET_STRING",
	UnicodeString: "UNICODE_STRING",
	Domain:        "DOMAIN",
	Real64:        "REAL64",
	Integer64:     "INTEGER64",
	Unsigned64:    "UNSIGNED64",
}

func (dt DataType) String() string {
	if n, ok := dataTypeNames[dt]; ok {
		return n
	}
	return fmt.Sprintf("DataType(0x%04X)", uint16(dt))
}

// Size returns the native size in bytes of fixed size types, 0 for variable
// length types.
func (dt DataType) Size() int {
	switch dt {
	case Boolean, Integer8, Unsigned8:
		return 1
	case Integer16, Unsigned16:
		return 2
	case Integer32, Unsigned32, Real32:
		return 4
	case Integer64, Unsigned64, Real64:
		return 8
	}
	return 0
}

// VariableLength reports whether values of the type have no fixed size.
func (dt DataType) VariableLength() bool {
	return dt.Size() == 0
}

// Attributes describe the access rights of a subindex. The low bits mirror
// the permission bits carried in read/write requests.
type Attributes uint16

const (
	AttrReadPreOp   Attributes = 0x0001
	AttrReadSafeOp  Attributes = 0x0002
	AttrReadOp      Attributes = 0x0004
	AttrWritePreOp  Attributes = 0x0008
	AttrWriteSafeOp Attributes = 0x0010
	AttrWriteOp     Attributes = 0x0020
	AttrRxMap       Attributes = 0x0040
	AttrTxMap       Attributes = 0x0080
	AttrBackup      Attributes = 0x0100
	AttrSetting     Attributes = 0x0200

	AttrRead  = AttrReadPreOp | AttrReadSafeOp | AttrReadOp
	AttrWrite = AttrWritePreOp | AttrWriteSafeOp | AttrWriteOp
	AttrRW    = AttrRead | AttrWrite
)

// Permissions selects which attribute bits a requester holds.
type Permissions = Attributes

// Readable reports whether any read bit intersects perm.
func (a Attributes) Readable(perm Permissions) bool {
	return a&AttrRead&perm != 0
}

// Writeable reports whether any write bit intersects perm.
func (a Attributes) Writeable(perm Permissions) bool {
	return a&AttrWrite&perm != 0
}

// AccessString renders the attributes the way EDS files spell access types.
func (a Attributes) AccessString() string {
	r := a&AttrRead != 0
	w := a&AttrWrite != 0
	switch {
	case r && w:
		return "rw"
	case r:
		return "ro"
	case w:
		return "wo"
	}
	return "--"
}
