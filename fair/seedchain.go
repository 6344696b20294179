package fair

import (
	"fmt"
	"sync"
)

// ErrChainExhausted is returned once the cursor has passed the last seed.
var ErrChainExhausted = fmt.Errorf("fair: seed chain exhausted")

// SeedChain is a hash-linked sequence of server seeds consumed one per round,
// oldest commitment first: seed[i] = sha256(seed[i+1]), so a revealed seed
// verifies against the previously revealed one without exposing future seeds.
type SeedChain struct {
	seeds  []string
	cursor int
}

// NewSeedChain builds a chain of the given length from a fresh terminal seed.
func NewSeedChain(length int) (*SeedChain, error) {
	if length <= 0 {
		return nil, fmt.Errorf("fair: chain length %d must be positive", length)
	}
	terminal, err := GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	seeds := make([]string, length)
	seeds[length-1] = terminal
	for i := length - 2; i >= 0; i-- {
		seeds[i] = HashServerSeed(seeds[i+1])
	}
	return &SeedChain{seeds: seeds}, nil
}

// Next returns the seed at the cursor and advances it.
func (c *SeedChain) Next() (string, error) {
	if c.cursor >= len(c.seeds) {
		return "", ErrChainExhausted
	}
	s := c.seeds[c.cursor]
	c.cursor++
	return s, nil
}

// Peek returns the seed at the cursor without advancing.
func (c *SeedChain) Peek() (string, error) {
	if c.cursor >= len(c.seeds) {
		return "", ErrChainExhausted
	}
	return c.seeds[c.cursor], nil
}

func (c *SeedChain) Remaining() int {
	return len(c.seeds) - c.cursor
}

// VerifyLink checks that a revealed seed hashes to the previously revealed
// one.
func VerifyLink(current, previous string) bool {
	return HashServerSeed(current) == previous
}

// RotatingProvider wraps a SeedChain of fixed length and replaces it with a
// fresh chain on exhaustion. Callers never observe ErrChainExhausted.
type RotatingProvider struct {
	mu     sync.Mutex
	chain  *SeedChain
	length int

	// onRotate, if set, is invoked with the new chain's first seed hash
	// after a rotation completes. Used for audit logging.
	onRotate func(firstSeedHash string)
}

func NewRotatingProvider(length int, onRotate func(firstSeedHash string)) (*RotatingProvider, error) {
	chain, err := NewSeedChain(length)
	if err != nil {
		return nil, err
	}
	return &RotatingProvider{chain: chain, length: length, onRotate: onRotate}, nil
}

// Next returns the next seed, rotating to a fresh chain first if the current
// one is exhausted. Rotation happens synchronously under the lock so no
// caller can slip between exhaustion and replacement.
func (p *RotatingProvider) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain.Remaining() == 0 {
		if err := p.rotateLocked(); err != nil {
			return "", err
		}
	}
	return p.chain.Next()
}

func (p *RotatingProvider) rotateLocked() error {
	chain, err := NewSeedChain(p.length)
	if err != nil {
		return fmt.Errorf("fair: rotate seed chain: %w", err)
	}
	p.chain = chain
	if p.onRotate != nil {
		first, _ := chain.Peek()
		p.onRotate(HashServerSeed(first))
	}
	return nil
}
