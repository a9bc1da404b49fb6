package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// LocalCounter remembers how many flowers this device has contributed. It is
// a fast path only; the server count is authoritative.
type LocalCounter interface {
	Count() (int, error)
	Increment() (int, error)
	Set(n int) error
}

type counterFile struct {
	FlowerCount int `json:"flowerCount"`
}

// FileCounter persists the count as JSON so it survives restarts.
type FileCounter struct {
	mu   sync.Mutex
	path string
}

func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

func (c *FileCounter) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *FileCounter) Increment() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.read()
	if err != nil {
		return 0, err
	}
	n++
	if err := c.write(n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *FileCounter) Set(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(n)
}

func (c *FileCounter) read() (int, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	var f counterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse counter: %w", err)
	}
	return f.FlowerCount, nil
}

func (c *FileCounter) write(n int) error {
	data, err := json.Marshal(counterFile{FlowerCount: n})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create counter dir: %w", err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write counter: %w", err)
	}
	return os.Rename(tmp, c.path)
}

type MemoryCounter struct {
	mu sync.Mutex
	n  int
}

func (c *MemoryCounter) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, nil
}

func (c *MemoryCounter) Increment() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

func (c *MemoryCounter) Set(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = n
	return nil
}
