package confirm

import (
	"bytes"
	"context"
	"encoding/gob"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

const pendingKeyPrefix = "confirm:"

func init() {
	RegisterParamType(Params{})
	RegisterParamType(map[string]any{})
	RegisterParamType([]any{})
	RegisterParamType([]string{})
}

// RegisterParamType makes a custom type decodable before this process has
// stored a value of it, e.g. when another process wrote the record. Put
// registers the types it encodes on its own.
func RegisterParamType(v any) {
	gob.Register(v)
}

// maxParamDepth bounds the walk over nested param values.
const maxParamDepth = 32

// registerParams registers the concrete type of every value reachable from
// params, so any gob-encodable value can sit behind an interface.
func registerParams(params Params) {
	for _, v := range params {
		registerValue(reflect.ValueOf(v), 0)
	}
}

// register ignores name clashes with an earlier RegisterName; the encoder
// uses whichever name is already bound.
func register(v any) {
	defer func() { _ = recover() }()
	gob.Register(v)
}

func registerValue(v reflect.Value, depth int) {
	if !v.IsValid() || depth > maxParamDepth {
		return
	}
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			registerValue(v.Elem(), depth+1)
		}
		return
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		if v.Type().PkgPath() == "" {
			return
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// gob cannot carry these; Encode reports it
		return
	}
	if v.CanInterface() {
		register(v.Interface())
	}

	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			registerValue(v.Elem(), depth+1)
		}
	case reflect.Map:
		if !mayHoldTypes(v.Type().Key()) && !mayHoldTypes(v.Type().Elem()) {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			registerValue(iter.Key(), depth+1)
			registerValue(iter.Value(), depth+1)
		}
	case reflect.Slice, reflect.Array:
		if !mayHoldTypes(v.Type().Elem()) {
			return
		}
		for i := 0; i < v.Len(); i++ {
			registerValue(v.Index(i), depth+1)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				registerValue(v.Field(i), depth+1)
			}
		}
	}
}

func mayHoldTypes(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

// SessionStorage is the slice of a user session the store needs.
type SessionStorage interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// PendingConfirmation is what waits in the session between show and
// confirm/cancel.
type PendingConfirmation struct {
	ConfirmerID string
	Params      Params
}

// Store keeps pending confirmations of one session keyed by token.
type Store struct {
	storage SessionStorage
}

func NewStore(storage SessionStorage) *Store {
	return &Store{storage: storage}
}

func pendingKey(token string) string {
	return pendingKeyPrefix + token
}

// Put stores rec under token, replacing any previous record.
func (s *Store) Put(ctx context.Context, token string, rec PendingConfirmation) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("empty confirmation token")
	}
	registerParams(rec.Params)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return errors.Wrap(err, "encode pending confirmation")
	}
	return s.storage.Put(ctx, pendingKey(token), buf.Bytes())
}

// Get returns the record stored under token. ErrInvalidState is returned for
// an empty or unknown token and for a record that cannot be decoded; storage
// failures are returned as they are.
func (s *Store) Get(ctx context.Context, token string) (PendingConfirmation, error) {
	if strings.TrimSpace(token) == "" {
		return PendingConfirmation{}, errors.Wrap(ErrInvalidState, "empty token")
	}
	raw, found, err := s.storage.Get(ctx, pendingKey(token))
	if err != nil {
		return PendingConfirmation{}, errors.Wrap(err, "load pending confirmation")
	}
	if !found {
		return PendingConfirmation{}, ErrInvalidState
	}

	var rec PendingConfirmation
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return PendingConfirmation{}, errors.Wrapf(ErrInvalidState, "malformed record: %v", err)
	}
	if rec.ConfirmerID == "" {
		return PendingConfirmation{}, errors.Wrap(ErrInvalidState, "record without confirmer")
	}
	if rec.Params == nil {
		rec.Params = Params{}
	}
	return rec, nil
}

// Clear removes the record stored under token, if any.
func (s *Store) Clear(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.storage.Delete(ctx, pendingKey(token))
}
