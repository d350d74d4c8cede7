package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Interning invariant: within one VM, byte-equal strings share a handle,
// whether they came from the constant pool or from runtime concatenation.
func TestInterning(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	vm_ := NewVMWithIO(&out, &errOut)

	err := vm_.Interpret(`var a = "foo" + "bar"; var b = "foobar";`)
	assert.Nil(t, err)

	// "foo", "bar", "foobar" plus the two variable names.
	assert.Len(t, vm_.strings, 5)

	a := vm_.globals[vm_.strings["a"]].(VObj)
	b := vm_.globals[vm_.strings["b"]].(VObj)
	assert.Same(t, a.Obj, b.Obj)
}

func TestInterningAcrossInterprets(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	vm_ := NewVMWithIO(&out, &errOut)

	assert.Nil(t, vm_.Interpret(`var a = "shared";`))
	handle := vm_.strings["shared"]
	assert.NotNil(t, handle)

	// A later chunk's constant re-interns onto the same handle.
	assert.Nil(t, vm_.Interpret(`var b = "shared";`))
	assert.Same(t, handle, vm_.strings["shared"])
	b := vm_.globals[vm_.strings["b"]].(VObj)
	assert.Same(t, handle, b.Obj)
}

func TestObjectRootsAndFree(t *testing.T) {
	t.Parallel()
	var out, errOut bytes.Buffer
	vm_ := NewVMWithIO(&out, &errOut)

	assert.Nil(t, vm_.Interpret(`var a = "x" + "y";`))
	assert.NotEmpty(t, vm_.objects)

	vm_.Free()
	assert.Empty(t, vm_.objects)

	// Still usable afterwards: interned handles live on in the table.
	out.Reset()
	assert.Nil(t, vm_.Interpret("print a;"))
	assert.Equal(t, "xy\n", out.String())
}
