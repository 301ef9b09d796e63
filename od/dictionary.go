package od

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/juju/errors"
	funk "github.com/thoas/go-funk"
)

// Entry is one subindex of an Object.
type Entry struct {
	SubIndex   uint8
	Name       string
	DataType   DataType
	Attributes Attributes
	// MaxSize is the capacity in bytes of variable length entries.
	MaxSize int
	// AppSpecificMetaData is opaque data attached by the application.
	AppSpecificMetaData []byte

	value []byte
}

// Object is one index of the dictionary.
type Object struct {
	Index    uint16
	Name     string
	Code     ObjectCode
	DataType DataType

	entries map[uint8]*Entry
}

// NewObject creates an object without subindices.
func NewObject(index uint16, name string, code ObjectCode, dataType DataType) *Object {
	return &Object{
		Index:    index,
		Name:     name,
		Code:     code,
		DataType: dataType,
		entries:  map[uint8]*Entry{},
	}
}

// AddEntry adds (or replaces) a subindex. value is copied.
func (obj *Object) AddEntry(entry Entry, value []byte) *Entry {
	e := entry
	e.value = append([]byte(nil), value...)
	if e.MaxSize < len(e.value) {
		e.MaxSize = len(e.value)
	}
	obj.entries[e.SubIndex] = &e
	return &e
}

// Entry returns the subindex or nil if it is empty.
func (obj *Object) Entry(subIndex uint8) *Entry {
	return obj.entries[subIndex]
}

// MaxNbOfSubindices is the highest defined subindex plus one.
func (obj *Object) MaxNbOfSubindices() int {
	max := -1
	for si := range obj.entries {
		if int(si) > max {
			max = int(si)
		}
	}
	return max + 1
}

// SubIndices returns the defined subindices in ascending order.
func (obj *Object) SubIndices() []uint8 {
	sis := funk.Keys(obj.entries).([]uint8)
	sort.Slice(sis, func(i, j int) bool { return sis[i] < sis[j] })
	return sis
}

func (obj *Object) anyAttributes(filter Attributes) bool {
	for _, e := range obj.entries {
		if e.Attributes&filter != 0 {
			return true
		}
	}
	return false
}

// ObjectDictionary is a thread-safe in-memory object dictionary.
type ObjectDictionary struct {
	mu      sync.RWMutex
	objects map[uint16]*Object
}

// New creates an empty object dictionary.
func New() *ObjectDictionary {
	return &ObjectDictionary{objects: map[uint16]*Object{}}
}

// Add inserts obj. Adding an index twice is an error.
func (dic *ObjectDictionary) Add(obj *Object) error {
	dic.mu.Lock()
	defer dic.mu.Unlock()
	if _, ok := dic.objects[obj.Index]; ok {
		return errors.AlreadyExistsf("object 0x%04X", obj.Index)
	}
	dic.objects[obj.Index] = obj
	return nil
}

// AddVariable is a shortcut for a VAR object holding a single subindex 0.
func (dic *ObjectDictionary) AddVariable(index uint16, name string, dataType DataType, attr Attributes, value []byte) error {
	obj := NewObject(index, name, ObjectCodeVar, dataType)
	obj.AddEntry(Entry{Name: name, DataType: dataType, Attributes: attr}, value)
	return dic.Add(obj)
}

// Object returns the object at index or nil.
func (dic *ObjectDictionary) Object(index uint16) *Object {
	dic.mu.RLock()
	defer dic.mu.RUnlock()
	return dic.objects[index]
}

// Indices returns all indices in ascending order.
func (dic *ObjectDictionary) Indices() []uint16 {
	dic.mu.RLock()
	defer dic.mu.RUnlock()
	indices := funk.Keys(dic.objects).([]uint16)
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}

// Enumerate returns the indices in [start, last] of objects that have at
// least one subindex with an attribute in filter.
func (dic *ObjectDictionary) Enumerate(start, last uint16, filter Attributes) []uint16 {
	var out []uint16
	for _, idx := range dic.Indices() {
		if idx < start || idx > last {
			continue
		}
		dic.mu.RLock()
		match := dic.objects[idx].anyAttributes(filter)
		dic.mu.RUnlock()
		if match {
			out = append(out, idx)
		}
	}
	return out
}

func (dic *ObjectDictionary) lookup(index uint16, subIndex uint8) (*Object, *Entry, AbortCode) {
	obj := dic.objects[index]
	if obj == nil {
		return nil, nil, AbortNotExist
	}
	e := obj.entries[subIndex]
	if e == nil {
		return obj, nil, AbortSubUnknown
	}
	return obj, e, AbortNone
}

// Read returns a copy of the value of index:subIndex.
func (dic *ObjectDictionary) Read(index uint16, subIndex uint8, perm Permissions) ([]byte, AbortCode) {
	dic.mu.RLock()
	defer dic.mu.RUnlock()
	_, e, code := dic.lookup(index, subIndex)
	if code != AbortNone {
		return nil, code
	}
	if !e.Attributes.Readable(perm) {
		return nil, AbortWriteOnly
	}
	return append([]byte(nil), e.value...), AbortNone
}

// Write stores data into index:subIndex.
func (dic *ObjectDictionary) Write(index uint16, subIndex uint8, perm Permissions, data []byte) AbortCode {
	dic.mu.Lock()
	defer dic.mu.Unlock()
	_, e, code := dic.lookup(index, subIndex)
	if code != AbortNone {
		return code
	}
	if !e.Attributes.Writeable(perm) {
		return AbortReadOnly
	}
	if code := checkLength(e, len(data)); code != AbortNone {
		return code
	}
	e.value = append([]byte(nil), data...)
	return AbortNone
}

func checkLength(e *Entry, n int) AbortCode {
	if size := e.DataType.Size(); size != 0 {
		switch {
		case n > size:
			return AbortDataLong
		case n < size:
			return AbortDataShort
		}
		return AbortNone
	}
	if e.MaxSize > 0 && n > e.MaxSize {
		return AbortDataLong
	}
	return AbortNone
}

// ReadComplete reads subindex 0 followed by every other subindex in
// ascending order (CiA 301 complete access). SI0 is encoded on 16 bit when
// si016 is set, 8 bit otherwise.
func (dic *ObjectDictionary) ReadComplete(index uint16, perm Permissions, si016 bool) ([]byte, AbortCode) {
	dic.mu.RLock()
	defer dic.mu.RUnlock()
	obj := dic.objects[index]
	if obj == nil {
		return nil, AbortNotExist
	}
	if obj.Code != ObjectCodeArray && obj.Code != ObjectCodeRecord {
		return nil, AbortUnsupportedAccess
	}
	var out []byte
	for _, si := range obj.SubIndices() {
		e := obj.entries[si]
		if !e.Attributes.Readable(perm) {
			return nil, AbortWriteOnly
		}
		if si == 0 && si016 {
			var b [2]byte
			if len(e.value) > 0 {
				b[0] = e.value[0]
			}
			out = append(out, b[:]...)
			continue
		}
		out = append(out, e.value...)
	}
	return out, AbortNone
}

// WriteComplete is the counterpart of ReadComplete. Only objects whose
// subindices 1..n have fixed size types support it.
func (dic *ObjectDictionary) WriteComplete(index uint16, perm Permissions, si016 bool, data []byte) AbortCode {
	dic.mu.Lock()
	defer dic.mu.Unlock()
	obj := dic.objects[index]
	if obj == nil {
		return AbortNotExist
	}
	if obj.Code != ObjectCodeArray && obj.Code != ObjectCodeRecord {
		return AbortUnsupportedAccess
	}

	si0Size := 1
	if si016 {
		si0Size = 2
	}
	if len(data) < si0Size {
		return AbortDataShort
	}
	var si0 uint8
	if si016 {
		v := binary.LittleEndian.Uint16(data)
		if v > 0xFF {
			return AbortValueHigh
		}
		si0 = uint8(v)
	} else {
		si0 = data[0]
	}
	if e := obj.entries[0]; e != nil && len(e.value) > 0 && e.value[0] != si0 && !e.Attributes.Writeable(perm) {
		return AbortReadOnly
	}

	pending := map[uint8][]byte{0: {si0}}
	offset := si0Size
	for _, si := range obj.SubIndices() {
		if si == 0 {
			continue
		}
		if si > si0 {
			break
		}
		e := obj.entries[si]
		size := e.DataType.Size()
		if size == 0 {
			return AbortUnsupportedAccess
		}
		if !e.Attributes.Writeable(perm) {
			return AbortReadOnly
		}
		if offset+size > len(data) {
			return AbortDataShort
		}
		pending[si] = data[offset : offset+size]
		offset += size
	}
	if offset != len(data) {
		return AbortDataLong
	}
	for si, v := range pending {
		if e := obj.entries[si]; e != nil {
			e.value = append([]byte(nil), v...)
		}
	}
	return AbortNone
}
