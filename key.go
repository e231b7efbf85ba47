package robustpgo

import "fmt"

const (
	keyChrBits   = 8
	keyIndexBits = 64 - keyChrBits
	keyIndexMask = uint64(1)<<keyIndexBits - 1
)

// Key identifies a pose node. The top byte names the trajectory (typically one
// per robot) and the remaining bits hold the index along that trajectory.
type Key uint64

// Symbol builds a key from a trajectory character and an index.
func Symbol(chr byte, index uint64) Key {
	return Key(uint64(chr)<<keyIndexBits | index&keyIndexMask)
}

// Chr returns the trajectory character of the key.
func (k Key) Chr() byte {
	return byte(uint64(k) >> keyIndexBits)
}

// Index returns the position of the key along its trajectory.
func (k Key) Index() uint64 {
	return uint64(k) & keyIndexMask
}

// Next returns the key that follows k on the same trajectory.
func (k Key) Next() Key {
	return Symbol(k.Chr(), k.Index()+1)
}

// Follows returns whether k directly follows prev on the same trajectory.
func (k Key) Follows(prev Key) bool {
	return k.Chr() == prev.Chr() && k.Index() == prev.Index()+1
}

func (k Key) String() string {
	if c := k.Chr(); c >= '!' && c <= '~' {
		return fmt.Sprintf("%c%d", c, k.Index())
	}
	return fmt.Sprintf("%d", uint64(k))
}

// KeyPair is an ordered (from, to) pair of keys.
type KeyPair struct {
	From, To Key
}

func (p KeyPair) String() string {
	return fmt.Sprintf("%s->%s", p.From, p.To)
}

// less orders pairs by From then To.
func (p KeyPair) less(o KeyPair) bool {
	if p.From != o.From {
		return p.From < o.From
	}
	return p.To < o.To
}
