// Package message defines the closed set of SSH messages the transport and
// userauth state machines produce or accept, and a small reflection-based
// marshal/unmarshal pair keyed off an `sshtype` struct tag.
//
// The approach is lifted from golang.org/x/crypto/ssh's Marshal/Unmarshal
// (as vendored, for instance, in Kubernetes' SSH transport), adapted to the
// smaller message set this core needs.
package message

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/kmerz/awa-ssh/internal/wire"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

func typeTag(structType reflect.Type) byte {
	tagStr := structType.Field(0).Tag.Get("sshtype")
	n, err := strconv.Atoi(tagStr)
	if err != nil {
		return 0
	}
	return byte(n)
}

func fieldError(t reflect.Type, field int, problem string) error {
	return fmt.Errorf("message: field %s of %s: %s", t.Field(field).Name, t.Name(), problem)
}

// Marshal serializes msg (a struct or pointer to struct) to SSH wire
// format. If the first field carries a non-empty `sshtype` tag, that
// value is prepended as the message id byte. A final []byte field tagged
// `ssh:"rest"` is appended verbatim rather than length-prefixed.
func Marshal(msg any) []byte {
	v := reflect.Indirect(reflect.ValueOf(msg))
	t := v.Type()
	out := make([]byte, 0, 64)
	if tag := t.Field(0).Tag.Get("sshtype"); tag != "" {
		out = append(out, typeTag(t))
	}

	for i, n := 0, v.NumField(); i < n; i++ {
		field := v.Field(i)
		switch ft := field.Type(); ft.Kind() {
		case reflect.Struct:
			// Zero-field placeholder (e.g. `_ struct{} `sshtype:"..."`)
			// used by fieldless messages to carry only the id tag.
		case reflect.Bool:
			out = wire.AppendBool(out, field.Bool())
		case reflect.Uint32:
			out = wire.AppendUint32(out, uint32(field.Uint()))
		case reflect.Array:
			if ft.Elem().Kind() != reflect.Uint8 {
				panic(fieldError(t, i, "array of unsupported element type"))
			}
			for j := 0; j < ft.Len(); j++ {
				out = append(out, byte(field.Index(j).Uint()))
			}
		case reflect.String:
			out = wire.AppendStringASCII(out, field.String())
		case reflect.Slice:
			switch ft.Elem().Kind() {
			case reflect.Uint8:
				if t.Field(i).Tag.Get("ssh") == "rest" {
					out = append(out, field.Bytes()...)
				} else {
					out = wire.AppendString(out, field.Bytes())
				}
			case reflect.String:
				out = wire.AppendNameList(out, field.Interface().([]string))
			default:
				panic(fieldError(t, i, "slice of unsupported element type"))
			}
		case reflect.Ptr:
			if ft != bigIntType {
				panic(fieldError(t, i, "pointer to unsupported type"))
			}
			out = wire.AppendMpint(out, field.Interface().(*big.Int))
		default:
			panic(fieldError(t, i, "unsupported field type"))
		}
	}
	return out
}

// Unmarshal parses data into out, a pointer to struct. When the struct's
// first field has a non-empty `sshtype` tag, the leading byte of data
// must match it.
func Unmarshal(data []byte, out any) error {
	v := reflect.ValueOf(out).Elem()
	t := v.Type()

	if tag := t.Field(0).Tag.Get("sshtype"); tag != "" {
		want := typeTag(t)
		if len(data) == 0 {
			return fmt.Errorf("%w: empty message, want id %d", wire.ErrMalformed, want)
		}
		if data[0] != want {
			return fmt.Errorf("%w: message id %d, want %d", wire.ErrMalformed, data[0], want)
		}
		data = data[1:]
	}

	var err error
	for i, n := 0, v.NumField(); i < n; i++ {
		field := v.Field(i)
		switch ft := field.Type(); ft.Kind() {
		case reflect.Struct:
			// Zero-field placeholder; nothing to consume.
		case reflect.Bool:
			var b bool
			if b, data, err = wire.ParseBool(data); err != nil {
				return fieldError(t, i, err.Error())
			}
			field.SetBool(b)
		case reflect.Uint32:
			var u uint32
			if u, data, err = wire.ParseUint32(data); err != nil {
				return fieldError(t, i, err.Error())
			}
			field.SetUint(uint64(u))
		case reflect.Array:
			if ft.Elem().Kind() != reflect.Uint8 {
				return fieldError(t, i, "array of unsupported element type")
			}
			if len(data) < ft.Len() {
				return fieldError(t, i, "short read")
			}
			for j := 0; j < ft.Len(); j++ {
				field.Index(j).Set(reflect.ValueOf(data[j]))
			}
			data = data[ft.Len():]
		case reflect.String:
			var s []byte
			if s, data, err = wire.ParseString(data); err != nil {
				return fieldError(t, i, err.Error())
			}
			field.SetString(string(s))
		case reflect.Slice:
			switch ft.Elem().Kind() {
			case reflect.Uint8:
				if t.Field(i).Tag.Get("ssh") == "rest" {
					field.Set(reflect.ValueOf(append([]byte{}, data...)))
					data = nil
				} else {
					var s []byte
					if s, data, err = wire.ParseString(data); err != nil {
						return fieldError(t, i, err.Error())
					}
					field.Set(reflect.ValueOf(append([]byte{}, s...)))
				}
			case reflect.String:
				var nl []string
				if nl, data, err = wire.ParseNameList(data); err != nil {
					return fieldError(t, i, err.Error())
				}
				field.Set(reflect.ValueOf(nl))
			default:
				return fieldError(t, i, "slice of unsupported element type")
			}
		case reflect.Ptr:
			if ft != bigIntType {
				return fieldError(t, i, "pointer to unsupported type")
			}
			var mp *big.Int
			if mp, data, err = wire.ParseMpint(data); err != nil {
				return fieldError(t, i, err.Error())
			}
			field.Set(reflect.ValueOf(mp))
		default:
			return fieldError(t, i, "unsupported field type")
		}
	}

	if len(data) != 0 {
		return fmt.Errorf("%w: %d trailing bytes after %s", wire.ErrMalformed, len(data), t.Name())
	}
	return nil
}
