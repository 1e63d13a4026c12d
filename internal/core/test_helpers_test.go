package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

var testNow = time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, entry)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(nil, append([]Option{WithClock(stubClock{t: testNow})}, opts...)...)
}

func mustFarm(t *testing.T, svc *Service, name string, rows, cols int) Farm {
	t.Helper()
	farm, err := svc.CreateFarm(context.Background(), FarmInput{Name: name, GridRows: rows, GridCols: cols})
	require.NoError(t, err)
	return farm
}

func mustTree(t *testing.T, svc *Service, farmID, position, species string) Tree {
	t.Helper()
	tree, err := svc.PlaceTree(context.Background(), farmID, position, TreeAttributes{Species: species})
	require.NoError(t, err)
	return tree
}
