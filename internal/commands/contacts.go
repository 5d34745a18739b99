package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/projectns/projectns/internal/projects"
)

const (
	contactSyntax    = "PROJECT CONTACT <project> ADD|DEL <account> [VISIBLE|HIDDEN] [PRIMARY|SECONDARY]"
	contactSetSyntax = "PROJECT CONTACT <project> SET <account> VISIBLE|HIDDEN|PRIMARY|SECONDARY"
)

// contactFlags parses VISIBLE/HIDDEN/PRIMARY/SECONDARY keywords. Nil means unset.
func contactFlags(words []string) (visible, secondary *bool, ok bool) {
	for _, w := range words {
		v := true
		switch strings.ToUpper(w) {
		case "VISIBLE":
			visible = &v
		case "HIDDEN":
			v = false
			visible = &v
		case "SECONDARY":
			secondary = &v
		case "PRIMARY":
			v = false
			secondary = &v
		default:
			return nil, nil, false
		}
	}
	return visible, secondary, true
}

func describeContact(c projects.ContactView) string {
	vis, rank := "hidden", "primary"
	if c.Visible {
		vis = "visible"
	}
	if c.Secondary {
		rank = "secondary"
	}
	return vis + " " + rank
}

func (s *Service) contact(ctx context.Context, src Source, args []string) Result {
	var mode string
	if len(args) >= 2 {
		mode = strings.ToUpper(args[1])
	}
	if len(args) < 3 || (mode != "ADD" && mode != "DEL" && mode != "SET") {
		if len(args) >= 3 {
			return badParams("CONTACT", contactSyntax)
		}
		return needMore("CONTACT", contactSyntax)
	}
	name, target, extra := args[0], args[2], args[3:]

	visible, secondary, ok := contactFlags(extra)
	if !ok || (mode == "DEL" && len(extra) > 0) {
		return badParams("CONTACT", contactSyntax)
	}
	if mode == "SET" && visible == nil && secondary == nil {
		return needMore("CONTACT", contactSetSyntax)
	}

	p, found := s.reg.Find(name)
	if !found {
		return s.noSuchProject(name)
	}
	acct, found := s.dir.FindByName(target)
	if !found {
		return fail(FaultNoSuchTarget, "%s is not registered.", target)
	}

	r := &reply{}
	switch mode {
	case "ADD":
		_, err := s.reg.AddContact(p.Name, acct, visible != nil && *visible, secondary != nil && *secondary)
		switch {
		case errors.Is(err, projects.ErrConflict):
			return fail(FaultNoChange, "%s is already listed as contact for project %s.", acct.Name, p.Name)
		case err != nil:
			return s.namespaceFailure(name, err)
		}
		s.logCommand(ctx, src, "CONTACT", "PROJECT:CONTACT:ADD: %s to %s", acct.Name, p.Name)
		r.say("%s was set as a contact for project %s.", acct.Name, p.Name)

	case "DEL":
		removed, left, err := s.reg.RemoveContact(p.Name, acct.ID)
		if err != nil {
			return s.noSuchProject(name)
		}
		if !removed {
			return fail(FaultNoChange, "%s was not listed as a contact for project %s.", acct.Name, p.Name)
		}
		s.logCommand(ctx, src, "CONTACT", "PROJECT:CONTACT:DEL: %s from %s", acct.Name, p.Name)
		r.say("%s was removed as a contact for project %s.", acct.Name, p.Name)
		if left == 0 {
			r.say("The project %s now has no contacts.", p.Name)
		}

	case "SET":
		change, err := s.reg.SetContactAttributes(p.Name, acct.ID, visible, secondary)
		switch {
		case errors.Is(err, projects.ErrNoChange):
			return fail(FaultNoChange, "%s is already a %s contact for project %s.", acct.Name, describeContact(change.Contact), p.Name)
		case errors.Is(err, projects.ErrNotFound):
			return fail(FaultNoChange, "%s was not listed as a contact for project %s.", acct.Name, p.Name)
		case err != nil:
			return s.namespaceFailure(name, err)
		}
		desc := describeContact(change.Contact)
		s.logCommand(ctx, src, "CONTACT", "PROJECT:CONTACT:SET: %s on %s (%s)", acct.Name, p.Name, strings.ToUpper(desc))
		r.say("%s is now a %s contact for project %s.", acct.Name, desc, p.Name)
	}
	return r.ok()
}
