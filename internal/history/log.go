package history

import (
	"sync"

	"labeltool/internal/label"
	"labeltool/internal/logging"
)

// Log is a single linear stack of commands with a cursor. Entries below the
// cursor are applied; entries at or above it are available to redo.
type Log struct {
	mu       sync.Mutex
	target   Mutator
	commands []Command
	cursor   int
	limit    int // 0 = unlimited
}

// NewLog creates a log that applies commands to target.
func NewLog(target Mutator) *Log {
	return &Log{target: target}
}

// SetLimit caps the number of entries kept; the oldest applied entries are
// dropped first. 0 disables the cap.
func (l *Log) SetLimit(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 {
		n = 0
	}
	l.limit = n
	l.trim()
}

// Limit returns the entry cap (0 = unlimited).
func (l *Log) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *Log) trim() {
	if l.limit == 0 || len(l.commands) <= l.limit {
		return
	}
	drop := len(l.commands) - l.limit
	if drop > l.cursor {
		drop = l.cursor
	}
	l.commands = append([]Command(nil), l.commands[drop:]...)
	l.cursor -= drop
}

// Push discards the redo tail, applies cmd and advances the cursor.
func (l *Log) Push(cmd Command) {
	l.mu.Lock()
	l.commands = append(l.commands[:l.cursor], cmd)
	l.cursor++
	l.trim()
	l.mu.Unlock()

	logging.ForService("history").Debug("apply", "image", cmd.Image(), "command", cmd.Description())
	cmd.Apply(l.target)
}

// Undo reverts the command below the cursor. It returns false at the bottom.
func (l *Log) Undo() bool {
	l.mu.Lock()
	if l.cursor == 0 {
		l.mu.Unlock()
		return false
	}
	l.cursor--
	cmd := l.commands[l.cursor]
	l.mu.Unlock()

	logging.ForService("history").Debug("undo", "image", cmd.Image(), "command", cmd.Description())
	cmd.Revert(l.target)
	return true
}

// Redo re-applies the command at the cursor. It returns false at the top.
func (l *Log) Redo() bool {
	l.mu.Lock()
	if l.cursor == len(l.commands) {
		l.mu.Unlock()
		return false
	}
	cmd := l.commands[l.cursor]
	l.cursor++
	l.mu.Unlock()

	logging.ForService("history").Debug("redo", "image", cmd.Image(), "command", cmd.Description())
	cmd.Apply(l.target)
	return true
}

// CanUndo reports whether Undo would do anything.
func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

// CanRedo reports whether Redo would do anything.
func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.commands)
}

// UndoText describes the command Undo would revert, or "".
func (l *Log) UndoText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == 0 {
		return ""
	}
	return l.commands[l.cursor-1].Description()
}

// RedoText describes the command Redo would apply, or "".
func (l *Log) RedoText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == len(l.commands) {
		return ""
	}
	return l.commands[l.cursor].Description()
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

// Cursor returns the number of applied entries.
func (l *Log) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Clear drops all history without touching the store.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = nil
	l.cursor = 0
}

// AddLabel pushes an Add command.
func (l *Log) AddLabel(imagePath string, lb label.Label) {
	l.Push(NewAdd(imagePath, lb))
}

// RemoveLabel pushes a Remove command.
func (l *Log) RemoveLabel(imagePath string, index int) {
	l.Push(NewRemove(imagePath, index))
}

// UpdateLabel pushes an Update command.
func (l *Log) UpdateLabel(imagePath string, index int, replacement label.Label) {
	l.Push(NewUpdate(imagePath, index, replacement))
}

// ClearLabels pushes a Clear command.
func (l *Log) ClearLabels(imagePath string) {
	l.Push(NewClear(imagePath))
}

// SetLabels pushes a SetAll command.
func (l *Log) SetLabels(imagePath string, labels []label.Label) {
	l.Push(NewSetAll(imagePath, labels))
}
