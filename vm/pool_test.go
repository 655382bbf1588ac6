package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringPoolInternAndGet(t *testing.T) {
	p := NewStringPool()
	ref := p.Intern("hello")
	assert.Equal(t, "hello", p.Get(ref))
}

func TestStringPoolGCPreservesRoots(t *testing.T) {
	p := NewStringPool()
	live := p.Intern("live")
	dead := p.Intern("dead")

	p.GC(map[StringRef]bool{live: true})

	assert.Equal(t, "live", p.Get(live))
	assert.Equal(t, "", p.Get(dead))
}

func TestStringPoolReusesFreedSlotBeforeGrowing(t *testing.T) {
	p := NewStringPool()
	a := p.Intern("a")
	p.GC(map[StringRef]bool{}) // frees slot a
	before := p.Len()

	b := p.Intern("b")

	assert.Equal(t, before, p.Len(), "should reuse the freed slot, not grow")
	assert.Equal(t, a, b)
	assert.Equal(t, "b", p.Get(b))
}

func TestStringPoolGrowsWhenNoFreeSlot(t *testing.T) {
	p := NewStringPool()
	p.Intern("a")
	before := p.Len()

	p.Intern("b")

	assert.Equal(t, before+1, p.Len())
}
