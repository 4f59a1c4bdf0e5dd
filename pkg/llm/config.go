package llm

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	Timeout   time.Duration
	MaxTokens int
}

func LoadFromEnv() Config {
	return Config{
		BaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   getenv("OPENAI_MODEL", "gpt-4o-mini"),

		Timeout:   time.Second * time.Duration(getInt("OPENAI_TIMEOUT", 30)),
		MaxTokens: getInt("OPENAI_MAX_TOKENS", 500),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
