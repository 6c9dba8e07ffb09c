package objtx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"

	"github.com/cuemby/objstore/pkg/schema"
)

// The inline codec encodes a value as:
//
//	VarUInt32 kind     (frameNil, frameBackRef, or frameFresh)
//	...kind-specific fields...
//
// frameNil has no further fields. frameBackRef is followed by one
// VarUInt32 index into the construction order. frameFresh is followed
// by VarUInt32 tableId, VarUInt32 version, then the saver's own bytes.
// It is used verbatim both to frame a top-level stored object and to
// embed a nested object inside another object's saver output, which is
// why writerCtx/readerCtx live below Transaction rather than inside the
// top-level Store/Get path.
const (
	frameNil uint64 = iota
	frameBackRef
	frameFresh
)

// writerCtx implements schema.Writer over a byte buffer, tracking
// object identity so a value embedded more than once in the same save
// is written once and referenced thereafter.
type writerCtx struct {
	tx  *Transaction
	buf *bytes.Buffer

	seen    map[any]uint64
	nextSeq uint64
}

func newWriterCtx(tx *Transaction) *writerCtx {
	return &writerCtx{
		tx:   tx,
		buf:  new(bytes.Buffer),
		seen: make(map[any]uint64),
	}
}

func (w *writerCtx) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writerCtx) AllocateDictionaryID() uint64 {
	return w.tx.AllocateDictionaryID()
}

// WriteInline encodes obj: nil, a back-reference to an already encoded
// instance, or a fresh [tableId, version, body] frame.
func (w *writerCtx) WriteInline(obj any) error {
	if obj == nil {
		return w.appendVarints(frameNil)
	}
	if idx, ok := w.seen[obj]; ok {
		return w.appendVarints(frameBackRef, idx)
	}

	t := reflect.TypeOf(obj)
	ti, ok := w.tx.owner.Registry().Lookup(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, t)
	}

	idx := w.nextSeq
	w.nextSeq++
	w.seen[obj] = idx

	if err := w.appendVarints(frameFresh, ti.Id, uint64(ti.ClientTypeVersion)); err != nil {
		return err
	}
	if ti.Saver == nil {
		return fmt.Errorf("objtx: table %q has no saver registered", ti.Name)
	}
	return ti.Saver(w, obj)
}

func (w *writerCtx) appendVarints(vs ...uint64) error {
	var tmp [binary.MaxVarintLen64]byte
	for _, v := range vs {
		n := binary.PutUvarint(tmp[:], v)
		w.buf.Write(tmp[:n])
	}
	return nil
}

func (w *writerCtx) Bytes() []byte {
	return w.buf.Bytes()
}

// readerCtx implements schema.Reader over a byte slice, mirroring
// writerCtx's back-reference bookkeeping on the decode side.
type readerCtx struct {
	tx  *Transaction
	r   *bytes.Reader
	raw []byte

	order []any
}

func newReaderCtx(tx *Transaction, data []byte) *readerCtx {
	return &readerCtx{
		tx:  tx,
		r:   bytes.NewReader(data),
		raw: data,
	}
}

func (r *readerCtx) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

// ReadByte lets readerCtx satisfy io.ByteReader, which encoding/binary's
// varint readers require; exposed so helpers like ReadOID can decode a
// single varint field without re-implementing byte-at-a-time reads.
func (r *readerCtx) ReadByte() (byte, error) {
	return r.r.ReadByte()
}

// Track registers obj as under construction at the next back-reference
// index. ReadInline calls this for each fresh frame right after
// constructing the instance and before running its loader, so a cyclic
// reference encountered mid-decode resolves to the same Go value.
func (r *readerCtx) Track(obj any) {
	r.order = append(r.order, obj)
}

func (r *readerCtx) readVarint() (uint64, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, fmt.Errorf("objtx: truncated inline frame: %w", err)
	}
	return v, nil
}

// ReadInline decodes one frame: nil, a resolved back-reference, or a
// fresh object (constructed, tracked, and loaded).
func (r *readerCtx) ReadInline() (any, error) {
	kind, err := r.readVarint()
	if err != nil {
		return nil, err
	}

	switch kind {
	case frameNil:
		return nil, nil
	case frameBackRef:
		payload, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		idx := int(payload)
		if idx >= len(r.order) {
			return nil, fmt.Errorf("objtx: back-reference index %d out of range", idx)
		}
		return r.order[idx], nil
	case frameFresh:
		tableID, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		version, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		ti, ok := r.tx.owner.Registry().LookupID(tableID)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTypeID, tableID)
		}
		obj := ti.New()
		r.Track(obj)

		loader, ok := ti.LoaderFor(uint32(version))
		if !ok {
			return nil, fmt.Errorf("objtx: table %q has no loader for version %d", ti.Name, version)
		}
		if err := loader(r, obj); err != nil {
			return nil, fmt.Errorf("objtx: decoding %q: %w", ti.Name, err)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("objtx: unknown inline frame kind %d", kind)
	}
}

// peekTopLevelTableID reads just the table id out of a top-level frame
// without constructing the object it describes, letting a caller reject
// an obviously wrong-typed record before paying for a full decode.
func peekTopLevelTableID(data []byte) (tableID uint64, ok bool) {
	r := bytes.NewReader(data)
	kind, err := binary.ReadUvarint(r)
	if err != nil || kind != frameFresh {
		return 0, false
	}
	id, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, false
	}
	return id, true
}

var (
	_ schema.Writer = (*writerCtx)(nil)
	_ schema.Reader = (*readerCtx)(nil)
	_ io.Writer     = (*writerCtx)(nil)
	_ io.Reader     = (*readerCtx)(nil)
)
