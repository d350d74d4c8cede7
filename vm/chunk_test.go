package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkWriteParallel(t *testing.T) {
	t.Parallel()
	c := NewChunk()
	c.Write(byte(OpNil), 1)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpReturn), 2)
	assert.Equal(t, []byte{byte(OpNil), byte(OpPop), byte(OpReturn)}, c.code)
	assert.Equal(t, []int{1, 1, 2}, c.lines)
}

func TestChunkAddConst(t *testing.T) {
	t.Parallel()
	c := NewChunk()
	assert.Equal(t, 0, c.AddConst(VNum(1.2)))
	assert.Equal(t, 1, c.AddConst(NewVStr("foo")))
	assert.Equal(t, 2, c.AddConst(VNil{}))
}

func TestDisassembleConstAndSimple(t *testing.T) {
	t.Parallel()
	c := NewChunk()
	n := c.AddConst(VNum(1.2))
	c.Write(byte(OpConst), 123)
	c.Write(byte(n), 123)
	c.Write(byte(OpReturn), 123)

	res, next := c.DisassembleInst(0)
	assert.Equal(t, "0000  123 OpConst             0 '1.2'", res)
	assert.Equal(t, 2, next)

	// Same line as the previous byte: elided with a pipe.
	res, next = c.DisassembleInst(2)
	assert.Equal(t, "0002    | OpReturn", res)
	assert.Equal(t, 3, next)
}

func TestDisassembleSlotOp(t *testing.T) {
	t.Parallel()
	c := NewChunk()
	c.Write(byte(OpGetLocal), 7)
	c.Write(3, 7)

	res, next := c.DisassembleInst(0)
	assert.Equal(t, "0000    7 OpGetLocal          3", res)
	assert.Equal(t, 2, next)
}

func TestDisassembleJumps(t *testing.T) {
	t.Parallel()
	c := NewChunk()
	// OpJumpUnless +4: 0 -> 7
	c.Write(byte(OpJumpUnless), 1)
	c.Write(0, 1)
	c.Write(4, 1)
	// OpLoop -6: 3 -> 0
	c.Write(byte(OpLoop), 1)
	c.Write(0, 1)
	c.Write(6, 1)

	res, next := c.DisassembleInst(0)
	assert.Equal(t, "0000    1 OpJumpUnless        0 -> 7", res)
	assert.Equal(t, 3, next)

	res, next = c.DisassembleInst(3)
	assert.Equal(t, "0003    | OpLoop              3 -> 0", res)
	assert.Equal(t, 6, next)
}

func TestDisassembleWholeChunk(t *testing.T) {
	t.Parallel()
	c := mustCompile(t, "print 1;")
	dump := c.Disassemble("test")
	assert.Contains(t, dump, "== test ==\n")
	assert.Contains(t, dump, "OpConst")
	assert.Contains(t, dump, "OpPrint")
	assert.Contains(t, dump, "OpReturn")
}
