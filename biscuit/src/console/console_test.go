package console

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetchBlocksUntilFed(t *testing.T) {
	r := NewRing(4)
	done := make(chan byte)
	go func() { done <- r.Getch() }()
	r.Feed('x')
	require.Equal(t, byte('x'), <-done)
}

func TestPutchAccumulatesOutput(t *testing.T) {
	r := NewRing(4)
	r.Putch('a')
	r.Putch('b')
	require.Equal(t, []byte("ab"), r.Written())
}
