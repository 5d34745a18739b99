package projects

import (
	"fmt"
	"strings"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/validation"
)

// MarkTimeFormat is the layout used when marks are displayed.
const MarkTimeFormat = "Jan 02 15:04:05 2006"

// AddMark appends a note to the project's mark log. Numbers continue from the highest
// number ever issued for the project, so a deleted number is never handed out again.
func (r *Registry) AddMark(name string, setter accounts.Ref, text string) (Mark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return Mark{}, invalid("mark", fmt.Errorf("text is empty"))
	}
	if err := validation.ValidateText(text); err != nil {
		return Mark{}, invalid("mark", err)
	}
	p, err := r.lookup(name)
	if err != nil {
		return Mark{}, err
	}

	p.lastMark++
	m := Mark{
		Number:     p.lastMark,
		Time:       r.opts.Clock().UTC(),
		Text:       text,
		SetterID:   setter.ID,
		SetterName: setter.Name,
	}
	p.marks = append(p.marks, m)
	return m, nil
}

// DeleteMark removes a mark by number.
func (r *Registry) DeleteMark(name string, number uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	for i, m := range p.marks {
		if m.Number == number {
			p.marks = append(p.marks[:i:i], p.marks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("mark %d on %s: %w", number, p.name, ErrNotFound)
}

// Marks returns the project's marks in the order they were added.
func (r *Registry) Marks(name string) ([]Mark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]Mark{}, p.marks...), nil
}

// FormatMark renders a mark for display. currentSetterName is the setter's present
// account name; when it differs from the name recorded on the mark both are shown.
func FormatMark(m Mark, currentSetterName string) string {
	when := m.Time.UTC().Format(MarkTimeFormat)
	if currentSetterName == "" {
		currentSetterName = m.SetterName
	}
	if !strings.EqualFold(currentSetterName, m.SetterName) {
		return fmt.Sprintf("Mark %d set by %s (%s) on %s: %s", m.Number, m.SetterName, currentSetterName, when, m.Text)
	}
	return fmt.Sprintf("Mark %d set by %s on %s: %s", m.Number, m.SetterName, when, m.Text)
}
