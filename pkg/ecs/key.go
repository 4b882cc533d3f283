package ecs

import (
	"cmp"
	"reflect"
)

// ResourceKey identifies a slot in a resource table or a component column. Two keys are equal iff
// they name the same slot: same Go type and same dynamic name. Dynamic names let one type occupy
// several slots.
type ResourceKey struct {
	typ     reflect.Type
	dynamic string
}

// KeyOf returns the key for the single static slot of T.
func KeyOf[T any]() ResourceKey {
	return ResourceKey{typ: reflect.TypeFor[T]()}
}

// DynamicKeyOf returns the key for the slot of T named name.
func DynamicKeyOf[T any](name string) ResourceKey {
	return ResourceKey{typ: reflect.TypeFor[T](), dynamic: name}
}

func (k ResourceKey) Type() reflect.Type { return k.typ }

func (k ResourceKey) Dynamic() string { return k.dynamic }

func (k ResourceKey) IsZero() bool { return k.typ == nil }

func (k ResourceKey) String() string {
	if k.typ == nil {
		return "<nil>"
	}
	if k.dynamic == "" {
		return k.typ.String()
	}
	return k.typ.String() + "#" + k.dynamic
}

func compareKeys(a, b ResourceKey) int {
	return cmp.Compare(a.String(), b.String())
}
