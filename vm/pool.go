package vm

import "github.com/rs/zerolog/log"

// StringPool is the VM's append-mostly vector of runtime strings with a
// parallel mark-byte vector, backing every value created by INPUT and
// ADD_STR. Constant-pool strings never live here.
type StringPool struct {
	entries []string
	marks   []byte
}

// NewStringPool creates an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{}
}

// Intern stores s in the first free (mark==0) slot, reusing it before the
// pool grows, and returns the slot's reference.
func (p *StringPool) Intern(s string) StringRef {
	for i, m := range p.marks {
		if m == 0 {
			p.entries[i] = s
			p.marks[i] = 1
			return StringRef(i)
		}
	}
	p.entries = append(p.entries, s)
	p.marks = append(p.marks, 1)
	return StringRef(len(p.entries) - 1)
}

// Get dereferences a pool slot.
func (p *StringPool) Get(ref StringRef) string {
	return p.entries[ref]
}

// StringRef is an opaque reference to a slot in a StringPool. The
// untagged runtime value cell (see vm.go) carries one of these only when
// the verifier has proven the cell's static type is String; the pool
// itself never inspects cell contents to decide reachability.
type StringRef int

// GC performs a mark-sweep pass: it clears every slot not referenced from
// the supplied live set and zeroes its storage. roots is the set of
// StringRef values the VM proved reachable from the live stack region
// [bp, sp) by consulting the statically-known type at each slot — the
// type-bitmap resolution to §4.6's soundness requirement (see DESIGN.md),
// used instead of scanning raw pointer address ranges.
func (p *StringPool) GC(roots map[StringRef]bool) {
	for i := range p.marks {
		p.marks[i] = 0
	}
	for ref := range roots {
		if int(ref) < len(p.marks) {
			p.marks[ref] = 1
		}
	}
	swept := 0
	for i, m := range p.marks {
		if m == 0 && p.entries[i] != "" {
			p.entries[i] = ""
			swept++
		}
	}
	log.Debug().Int("slots", len(p.entries)).Int("swept", swept).Msg("string pool gc")
}

// Len reports the number of slots currently allocated in the pool
// (including freed ones awaiting reuse).
func (p *StringPool) Len() int { return len(p.entries) }
