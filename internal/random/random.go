package random

import (
	"crypto/rand"
	"math/big"
)

var (
	letters      = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	alphanumeric = []rune("abcdefghijklmnopqrstuvwxyz0123456789")
)

// Letters returns n random ASCII letters, e.g. for naming in-memory databases.
func Letters(n uint) (string, error) {
	return fromAlphabet(letters, n)
}

// Alphanumeric returns n random lower-case letters and digits, e.g. for identifier suffixes.
func Alphanumeric(n uint) (string, error) {
	return fromAlphabet(alphanumeric, n)
}

func fromAlphabet(alphabet []rune, n uint) (string, error) {
	out := make([]rune, n)
	upper := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", err //nolint:wrapcheck // crypto/rand errors are self-explanatory.
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
