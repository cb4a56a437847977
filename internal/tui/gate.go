package tui

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/azyu/novelcraft/internal/novel"
)

// ErrWriterLocked is returned by generation commands while the gate is locked.
var ErrWriterLocked = errors.New("AI writer is locked, finish the story wizard and run /start")

// Gate locks the AI writer until the story foundation is complete. Importing
// or resetting a project locks it again.
type Gate struct {
	unlocked atomic.Bool
}

// Unlock opens the gate if doc has a complete foundation and a valid plot
// structure.
func (g *Gate) Unlock(doc novel.Document) error {
	if err := Ready(doc); err != nil {
		return err
	}
	g.unlocked.Store(true)
	return nil
}

// Lock closes the gate.
func (g *Gate) Lock() {
	g.unlocked.Store(false)
}

// Unlocked reports whether generation commands may run.
func (g *Gate) Unlocked() bool {
	return g.unlocked.Load()
}

// Ready explains why doc cannot be written from yet, or returns nil.
func Ready(doc novel.Document) error {
	if !doc.Choices.Ready() {
		return fmt.Errorf("%w: %s", ErrWriterLocked, missingChoices(doc.Choices))
	}
	if err := doc.PlotStructure.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriterLocked, err)
	}
	return nil
}

func missingChoices(c novel.Choices) string {
	switch {
	case novel.Deref(c.Genre) == "":
		return "no genre"
	case c.WritingStyle == "":
		return "no writing style"
	case c.Premise == "":
		return "no premise"
	case c.Synopsis == "":
		return "no synopsis"
	case novel.Deref(c.Opening) == "":
		return "no opening scene"
	default:
		return "no inciting incident"
	}
}
