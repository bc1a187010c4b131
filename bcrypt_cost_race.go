//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// passwordHashCost drops to the library default under the race detector; the
// production cost makes every instrumented login and registration test crawl.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
