package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	t.Parallel()
	assert.Equal(t, VBool(false), VTruthy(VNil{}))
	assert.Equal(t, VBool(false), VTruthy(VBool(false)))
	assert.Equal(t, VBool(true), VTruthy(VBool(true)))
	assert.Equal(t, VBool(true), VTruthy(VNum(0)))
	assert.Equal(t, VBool(true), VTruthy(NewVStr("")))
}

func TestValueEq(t *testing.T) {
	t.Parallel()
	assert.Equal(t, VBool(true), VEq(VNil{}, VNil{}))
	assert.Equal(t, VBool(true), VEq(VNum(1), VNum(1)))
	assert.Equal(t, VBool(false), VEq(VNum(1), VNum(2)))
	assert.Equal(t, VBool(true), VEq(VBool(true), VBool(true)))

	// Equality is structural within a variant, not handle identity.
	assert.Equal(t, VBool(true), VEq(NewVStr("foo"), NewVStr("foo")))
	assert.Equal(t, VBool(false), VEq(NewVStr("foo"), NewVStr("bar")))

	// Cross-variant equality is always false.
	assert.Equal(t, VBool(false), VEq(VNil{}, VBool(false)))
	assert.Equal(t, VBool(false), VEq(VNum(1), VBool(true)))
	assert.Equal(t, VBool(false), VEq(NewVStr("1"), VNum(1)))
}

func TestValueArith(t *testing.T) {
	t.Parallel()
	res, ok := VSub(VNum(3), VNum(1))
	assert.True(t, ok)
	assert.Equal(t, VNum(2), res)

	res, ok = VMul(VNum(3), VNum(2))
	assert.True(t, ok)
	assert.Equal(t, VNum(6), res)

	res, ok = VDiv(VNum(3), VNum(2))
	assert.True(t, ok)
	assert.Equal(t, VNum(1.5), res)

	res, ok = VNeg(VNum(3))
	assert.True(t, ok)
	assert.Equal(t, VNum(-3), res)

	_, ok = VSub(VNum(3), VNil{})
	assert.False(t, ok)
	_, ok = VNeg(NewVStr("3"))
	assert.False(t, ok)
}

func TestValueCompare(t *testing.T) {
	t.Parallel()
	res, ok := VGreater(VNum(2), VNum(1))
	assert.True(t, ok)
	assert.Equal(t, VBool(true), res)

	res, ok = VLess(VNum(2), VNum(1))
	assert.True(t, ok)
	assert.Equal(t, VBool(false), res)

	_, ok = VLess(VNum(2), VBool(true))
	assert.False(t, ok)
}

func TestValueString(t *testing.T) {
	t.Parallel()
	for _, pair := range []struct {
		val  Value
		want string
	}{
		{VNil{}, "nil"},
		{VBool(true), "true"},
		{VBool(false), "false"},
		{VNum(7), "7"},
		{VNum(3.5), "3.5"},
		{NewVStr("hi"), "hi"},
	} {
		assert.Equal(t, pair.want, fmt.Sprintf("%s", pair.val))
	}
}

func TestObjAccessors(t *testing.T) {
	t.Parallel()
	o := newObjStr("foo")
	assert.True(t, o.IsStr())
	s, ok := o.AsStr()
	assert.True(t, ok)
	assert.Equal(t, "foo", s)
	assert.Equal(t, "foo", o.AsStrUnsafe())
	assert.Equal(t, "foo", o.Stringify())
}
