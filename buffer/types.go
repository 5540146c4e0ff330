// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package buffer

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"
)

var (
	mu        sync.Mutex
	byName    = map[string]reflect.Type{}
	names     = map[reflect.Type]string{}
	locations = map[string]string{}
)

// RegisterType registers an element type under the provided name.
// Registered types can be transmitted by name in encoded
// descriptors. RegisterType panics if the name or the type is
// already registered.
func RegisterType(name string, typ reflect.Type) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := byName[name]; ok {
		location, ok := locations[name]
		if !ok {
			location = "<unknown>"
		}
		panic("buffer.RegisterType: type name " + name + " already registered at " + location)
	}
	if other, ok := names[typ]; ok {
		panic("buffer.RegisterType: type " + typ.String() + " already registered as " + other)
	}
	byName[name] = typ
	names[typ] = name
	if _, file, line, ok := runtime.Caller(1); ok {
		locations[name] = fmt.Sprintf("%s:%d", file, line)
	}
}

// TypeOf returns the element type registered under name.
func TypeOf(name string) (reflect.Type, bool) {
	mu.Lock()
	defer mu.Unlock()
	typ, ok := byName[name]
	return typ, ok
}

// TypeName returns the name under which typ is registered.
func TypeName(typ reflect.Type) (string, bool) {
	mu.Lock()
	defer mu.Unlock()
	name, ok := names[typ]
	return name, ok
}

// Types returns the names of all registered element types, sorted.
func Types() []string {
	mu.Lock()
	defer mu.Unlock()
	list := make([]string, 0, len(byName))
	for name := range byName {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func init() {
	for _, v := range []interface{}{
		false,
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0),
		complex64(0), complex128(0),
	} {
		typ := reflect.TypeOf(v)
		RegisterType(typ.String(), typ)
	}
}
