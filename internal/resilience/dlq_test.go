package resilience

import (
	"errors"
	"testing"
)

func TestNewDLQEntry(t *testing.T) {
	e := NewDLQEntry("aldi_sued", "https://filialen.aldi-sued.de/x", 3, errUpstream)
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("entry missing id or timestamp: %+v", e)
	}
	if e.ErrorType != "transient" || !e.Retryable() {
		t.Errorf("ErrorType = %q", e.ErrorType)
	}
	if e.Attempts != 3 || e.Source != "aldi_sued" {
		t.Errorf("unexpected entry: %+v", e)
	}

	p := NewDLQEntry("lidl", "https://www.lidl.de/f/", 1, errors.New("no map link"))
	if p.ErrorType != "permanent" || p.Retryable() {
		t.Errorf("ErrorType = %q", p.ErrorType)
	}
	if p.ID == e.ID {
		t.Error("ids collide")
	}
}
