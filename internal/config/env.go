package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials are read from the environment (after .env loading).
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
	ClientID          string
	ClientSecret      string

	OpenAIKey     string
	TelegramToken string
}

// FindDotEnv returns the nearest .env walking up from start, or "".
func FindDotEnv(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, ".env")
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadDotEnv loads the nearest .env from cwd, then <configDir>/.env. Variables
// already set in the environment are never overridden. It returns the files
// that were loaded.
func LoadDotEnv(configDir string) ([]string, error) {
	var files []string
	if cwd, err := os.Getwd(); err == nil {
		if p := FindDotEnv(cwd); p != "" {
			files = append(files, p)
		}
	}
	if configDir != "" {
		p := filepath.Join(configDir, ".env")
		if st, err := os.Stat(p); err == nil && !st.IsDir() && !contains(files, p) {
			files = append(files, p)
		}
	}
	var errs []error
	loaded := files[:0]
	for _, p := range files {
		if err := godotenv.Load(p); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded, errors.Join(errs...)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func CredentialsFromEnv() Credentials {
	get := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }
	return Credentials{
		APIKey:            get("API_KEY"),
		APISecret:         get("API_SECRET"),
		AccessToken:       get("ACCESS_TOKEN"),
		AccessTokenSecret: get("ACCESS_TOKEN_SECRET"),
		BearerToken:       get("X_BEARER_TOKEN"),
		ClientID:          get("CLIENT_ID"),
		ClientSecret:      get("CLIENT_SECRET"),
		OpenAIKey:         get("OPENAI_API_KEY"),
		TelegramToken:     get("TELEGRAM_BOT_TOKEN"),
	}
}
