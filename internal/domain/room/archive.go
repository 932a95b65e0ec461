package room

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ArchiveVersion is the only envelope version this build reads and writes.
const ArchiveVersion = 1

type RecordKind string

const (
	KindChat    RecordKind = "chat"
	KindContext RecordKind = "context"
)

var (
	ErrUnsupportedArchiveVersion = errors.New("unsupported archive version")
	ErrUnknownRecordKind         = errors.New("unknown archive record kind")
)

var allowedKinds = map[RecordKind]struct{}{
	KindChat:    {},
	KindContext: {},
}

// Record is one archived item. Data is kept raw so that decoding never
// depends on the concrete Go type that produced it.
type Record struct {
	Kind RecordKind      `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Archive is the versioned envelope stored in the chats and contexts columns.
type Archive struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

func NewArchive() Archive {
	return Archive{Version: ArchiveVersion, Records: []Record{}}
}

// DecodeArchive parses a stored envelope. An empty blob is an empty archive.
func DecodeArchive(raw []byte) (Archive, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NewArchive(), nil
	}
	var a Archive
	if err := json.Unmarshal(raw, &a); err != nil {
		return Archive{}, fmt.Errorf("decode archive: %w", err)
	}
	if a.Version != ArchiveVersion {
		return Archive{}, fmt.Errorf("%w: %d", ErrUnsupportedArchiveVersion, a.Version)
	}
	for i, rec := range a.Records {
		if _, ok := allowedKinds[rec.Kind]; !ok {
			return Archive{}, fmt.Errorf("%w: %q at %d", ErrUnknownRecordKind, rec.Kind, i)
		}
	}
	if a.Records == nil {
		a.Records = []Record{}
	}
	return a, nil
}

func (a Archive) Encode() ([]byte, error) {
	if a.Version == 0 {
		a.Version = ArchiveVersion
	}
	if a.Records == nil {
		a.Records = []Record{}
	}
	return json.Marshal(a)
}

// Append serializes v and adds it under kind.
func (a *Archive) Append(kind RecordKind, v any) error {
	if _, ok := allowedKinds[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRecordKind, kind)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}
	a.Records = append(a.Records, Record{Kind: kind, Data: data})
	return nil
}

// Of returns the records of the given kind in insertion order.
func (a Archive) Of(kind RecordKind) []Record {
	var out []Record
	for _, rec := range a.Records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// AppendChat decodes the room's chat archive, appends v and stores it back.
func (r *Room) AppendChat(v any) error {
	a, err := DecodeArchive(r.Chats)
	if err != nil {
		return err
	}
	if err := a.Append(KindChat, v); err != nil {
		return err
	}
	data, err := a.Encode()
	if err != nil {
		return err
	}
	r.Chats = data
	return nil
}

// SetContexts replaces the context archive with one record per snapshot.
func (r *Room) SetContexts(snapshots []any) error {
	a := NewArchive()
	for _, s := range snapshots {
		if err := a.Append(KindContext, s); err != nil {
			return err
		}
	}
	data, err := a.Encode()
	if err != nil {
		return err
	}
	r.Contexts = data
	return nil
}

func (r *Room) ChatArchive() (Archive, error) {
	return DecodeArchive(r.Chats)
}

func (r *Room) ContextArchive() (Archive, error) {
	return DecodeArchive(r.Contexts)
}
