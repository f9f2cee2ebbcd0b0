// Package cache provides a small file-backed TTL cache. Each checker owns
// its own instance, injected at construction, so no cross-run state hides in
// package variables and tests can point a checker at a throwaway directory.
package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

func New(dir string, ttl time.Duration, enabled bool) *Cache {
	return &Cache{
		dir:     dir,
		ttl:     ttl,
		enabled: enabled,
		now:     time.Now,
	}
}

type envelope struct {
	Expiry time.Time       `json:"expiry"`
	Value  json.RawMessage `json:"value"`
}

func (c *Cache) key(source, method string, params interface{}) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x.json", source, method, hash)
}

// Get retrieves a cached value if present and unexpired.
func (c *Cache) Get(source, method string, params interface{}, result interface{}) bool {
	if !c.enabled {
		return false
	}

	path := filepath.Join(c.dir, c.key(source, method, params))
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	if c.now().After(env.Expiry) {
		os.Remove(path)
		return false
	}

	return json.Unmarshal(env.Value, result) == nil
}

// Set stores a value with the cache's TTL.
func (c *Cache) Set(source, method string, params interface{}, value interface{}) error {
	if !c.enabled {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env := envelope{
		Expiry: c.now().Add(c.ttl),
		Value:  raw,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.dir, c.key(source, method, params)), data, 0o644)
}
