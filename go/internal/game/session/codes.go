package session

import "math/rand"

const codeLength = 5

// Code alphabet drops 0/O/1/I so codes survive being read out loud.
var codeLetters = []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")

// NewCode returns a short human-typeable join code.
func NewCode(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = codeLetters[rand.Intn(len(codeLetters))]
	}
	return string(b)
}
