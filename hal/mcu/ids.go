package mcu

import "math/rand/v2"

// IDSource hands out request IDs. Acks must echo the ID of their request.
type IDSource interface {
	NextID() byte
}

// SeededIDs draws IDs in [0, 254] from a PRNG with a fixed seed, so a given
// session always produces the same sequence.
type SeededIDs struct {
	r *rand.Rand
}

func NewSeededIDs(seed uint64) *SeededIDs {
	return &SeededIDs{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *SeededIDs) NextID() byte { return byte(s.r.IntN(255)) }

// Counter hands out 0, 1, 2, ... wrapping at 256.
type Counter struct {
	n byte
}

func (c *Counter) NextID() byte {
	id := c.n
	c.n++
	return id
}
