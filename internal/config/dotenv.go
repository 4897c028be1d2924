package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotenvFiles are checked in priority order; an earlier file wins over
// a later one because godotenv never overwrites a key that is already
// set. Real OS environment variables therefore always win over both.
var dotenvFiles = []string{".env.local", ".env"}

// LoadDotEnv loads the env files present in the working directory and
// returns their names, so the caller can log what was picked up.
func LoadDotEnv() []string {
	var found []string
	for _, name := range dotenvFiles {
		if _, err := os.Stat(name); err == nil {
			found = append(found, name)
		}
	}
	if len(found) > 0 {
		_ = godotenv.Load(found...)
	}
	return found
}
