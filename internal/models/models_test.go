package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	m := Monitor{ID: "m1", Type: "http", RetryAttempts: -2}
	m.ApplyDefaults()

	assert.Equal(t, DefaultCheckIntervalMs, m.CheckIntervalMs)
	assert.Equal(t, DefaultTimeoutMs, m.TimeoutMs)
	assert.Equal(t, 0, m.RetryAttempts)
	assert.Equal(t, StatusPending, m.Status)
}

func TestCloneIsDeep(t *testing.T) {
	s := Site{Identifier: "s1", Monitors: []Monitor{{ID: "m1", ActiveOperations: []string{"op"}}}}
	c := s.Clone()
	c.Monitors[0].ID = "changed"
	c.Monitors[0].ActiveOperations[0] = "other"

	assert.Equal(t, "m1", s.Monitors[0].ID)
	assert.Equal(t, "op", s.Monitors[0].ActiveOperations[0])
}

func TestFindMonitor(t *testing.T) {
	s := Site{Monitors: []Monitor{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, 1, s.FindMonitor("b"))
	assert.Equal(t, -1, s.FindMonitor("c"))
}
