// ABOUTME: Loads environment variables from .env files at startup.
// ABOUTME: Sets variables only when not already present in the environment (no clobber).
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadDotEnv reads a .env file and sets any variables not already in the
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// loadDotEnvAuto loads .env files from common locations without clobbering
// existing environment variables. Earlier files win. Search order:
//  1. .env in current directory and its parents
//  2. .env next to the current executable
func loadDotEnvAuto() {
	seen := map[string]bool{}

	addPath := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		if err := loadDotEnv(p); err != nil {
			log.Printf("component=cli action=load_dotenv path=%s err=%v", p, err)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			addPath(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if exe, err := os.Executable(); err == nil {
		addPath(filepath.Join(filepath.Dir(exe), ".env"))
	}
}
