package roomclient

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const usernameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

var animals = []string{"Lion", "Tiger", "Bear", "Wolf", "Fox", "Eagle", "Shark", "Dolphin"}

// GenerateUsername returns a display name like "anonymous-Wolf-x7_Qa". It is
// cosmetic and carries no identity.
func GenerateUsername() string {
	var b strings.Builder
	b.WriteString("anonymous-")
	b.WriteString(animals[secureRandom(len(animals))])
	b.WriteByte('-')
	for range 5 {
		b.WriteByte(usernameAlphabet[secureRandom(len(usernameAlphabet))])
	}
	return b.String()
}

func secureRandom(max int) int {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
