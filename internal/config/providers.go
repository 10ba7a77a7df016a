package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider는 채팅 완성 API 한 벌의 접속 정보.
type Provider struct {
	Name       string        `yaml:"name"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	MaxTokens  int           `yaml:"max_tokens"`
	TimeoutSec int           `yaml:"timeout_sec"`
	Timeout    time.Duration `yaml:"-"`
}

// APIKey는 지정된 환경변수에서 키를 읽음. 비어있을 수 있음.
func (p Provider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
}

// RandomProviderName은 LLM 없이 무작위 합법수만 두는 내장 백엔드 이름.
const RandomProviderName = "random"

func defaultProviders() map[string]Provider {
	return map[string]Provider{
		"groq": {
			Name:      "groq",
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "gemma-2-9b-it",
			APIKeyEnv: "GROQ_API_KEY",
			Timeout:   30 * time.Second,
		},
		"openai": {
			Name:      "openai",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   30 * time.Second,
		},
		RandomProviderName: {Name: RandomProviderName},
	}
}

// LoadProviders는 내장 카탈로그 위에 yaml 파일(있으면)을 덮어씀.
func LoadProviders(path string) (map[string]Provider, error) {
	providers := defaultProviders()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return providers, nil
		}
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var doc struct {
		Providers []Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}

	for _, p := range doc.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("providers file: entry without name")
		}
		if name != RandomProviderName && strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", name)
		}
		p.Timeout = 30 * time.Second
		if p.TimeoutSec > 0 {
			p.Timeout = time.Duration(p.TimeoutSec) * time.Second
		}
		p.Name = name
		providers[name] = p
	}
	return providers, nil
}

// ProviderNames는 카탈로그의 이름을 정렬하여 반환.
func ProviderNames(providers map[string]Provider) []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
