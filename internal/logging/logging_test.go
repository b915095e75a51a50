package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewConfigLevel(t *testing.T) {
	if lvl := NewConfig(false).Level.Level(); lvl != zap.InfoLevel {
		t.Errorf("Expected info level, got %s", lvl)
	}
	if lvl := NewConfig(true).Level.Level(); lvl != zap.DebugLevel {
		t.Errorf("Expected debug level, got %s", lvl)
	}
}

func TestNew(t *testing.T) {
	log := New("test", true)
	if log == nil {
		t.Fatal("Expected a logger")
	}
	if !log.Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("Debug logger should enable debug level")
	}
	if New("test", false).Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("Default logger should not enable debug level")
	}
}
