// SPDX-License-Identifier: GPL-3.0-or-later

package typeid_test

import (
	"testing"

	"github.com/rbmk-project/pktbuf/typeid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ value int }

func TestRegister(t *testing.T) {
	tid := typeid.Register("typeid_test.Widget", func() any { return &widget{value: 42} })
	require.True(t, tid.IsValid())
	assert.Equal(t, "typeid_test.Widget", tid.Name())
	assert.Equal(t, "typeid_test.Widget", tid.String())
	assert.True(t, tid.HasConstructor())

	t.Run("registering again returns the same id", func(t *testing.T) {
		again := typeid.Register("typeid_test.Widget", nil)
		assert.Equal(t, tid, again)
		assert.True(t, again.HasConstructor())
	})

	t.Run("lookup by name", func(t *testing.T) {
		got, found := typeid.Lookup("typeid_test.Widget")
		assert.True(t, found)
		assert.Equal(t, tid, got)

		_, found = typeid.Lookup("typeid_test.Missing")
		assert.False(t, found)
	})

	t.Run("constructing values", func(t *testing.T) {
		value, ok := tid.New()
		require.True(t, ok)
		assert.Equal(t, &widget{value: 42}, value)
	})

	t.Run("empty names are rejected", func(t *testing.T) {
		assert.Panics(t, func() { typeid.Register("", nil) })
	})
}

func TestInvalidTypeID(t *testing.T) {
	var tid typeid.TypeID
	assert.False(t, tid.IsValid())
	assert.Equal(t, "", tid.Name())
	assert.Equal(t, "TypeID(0)", tid.String())
	assert.False(t, tid.HasConstructor())
	value, ok := tid.New()
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestLazy(t *testing.T) {
	lazy := typeid.Lazy("typeid_test.Lazy", nil)
	_, found := typeid.Lookup("typeid_test.Lazy")
	assert.False(t, found)
	tid := lazy()
	assert.Equal(t, tid, lazy())
	assert.Equal(t, "typeid_test.Lazy", tid.Name())
}
