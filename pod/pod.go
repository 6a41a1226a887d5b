// Package pod inspects plain old data types: values whose in-memory layout can
// be copied to and from another process byte for byte.
package pod

import (
	"fmt"
	"reflect"
	"unsafe"
)

// SizeOf returns the in-memory size of T.
func SizeOf[T any]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// Check reports an error when T contains pointers or other Go managed
// references. Copying such a value out of another process would hand the
// garbage collector foreign addresses.
func Check[T any]() error {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if path, kind, ok := pointerField(rt, rt.String()); ok {
		return fmt.Errorf("%s is not plain data: %s is a %s", rt, path, kind)
	}
	return nil
}

// IsPlain reports whether T is plain data.
func IsPlain[T any]() bool {
	return Check[T]() == nil
}

// Bytes returns a view of the memory of v. The view aliases v.
func Bytes[T any](v *T) []byte {
	size := int(unsafe.Sizeof(*v))
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), size)
}

// SliceBytes returns a view of the backing array of s, len(s) elements long.
// The view aliases s.
func SliceBytes[T any](s []T) []byte {
	size := SizeOf[T]()
	if len(s) == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)
}

// pointerField returns the path and kind of the first field of rt that holds
// a reference.
func pointerField(rt reflect.Type, path string) (string, reflect.Kind, bool) {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func,
		reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return path, rt.Kind(), true
	case reflect.Array:
		return pointerField(rt.Elem(), path+"[]")
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if p, kind, ok := pointerField(field.Type, path+"."+field.Name); ok {
				return p, kind, true
			}
		}
	}
	return "", reflect.Invalid, false
}
