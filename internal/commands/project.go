package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectns/projectns/internal/projects"
)

const (
	setSyntax   = "SET <project> <setting> [parameters]"
	auditSyntax = "AUDIT [CHANNELS|CONTACTS]"
)

func (s *Service) register(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("REGISTER", "REGISTER <project>")
	}
	if len(args) > 1 {
		return fail(FaultBadParams, "For technical reasons, project names cannot contain spaces.")
	}
	name := args[0]

	p, err := s.reg.Create(name, src.Account.Name)
	switch {
	case errors.Is(err, projects.ErrConflict):
		return fail(FaultAlreadyExists, "%s is already registered.", name)
	case err != nil:
		return fail(FaultBadParams, "%s is not a valid project name.", name)
	}

	s.logCommand(ctx, src, "REGISTER", "PROJECT:REGISTER: %s", p.Name)
	r := &reply{}
	r.say("The project %s has been registered.", p.Name)
	return r.ok()
}

func (s *Service) drop(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("DROP", "PROJECT DROP <project>")
	}

	res, err := s.reg.Drop(args[0])
	if err != nil {
		return s.noSuchProject(args[0])
	}

	s.logCommand(ctx, src, "DROP", "PROJECT:DROP: %s", res.Name)
	r := &reply{}
	r.say("The registration for the project %s has been dropped.", res.Name)
	return r.ok()
}

func (s *Service) info(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("INFO", "PROJECT INFO <project>")
	}
	p, ok := s.reg.Find(args[0])
	if !ok {
		return s.noSuchProject(args[0])
	}

	r := &reply{}
	r.say("Information on %s:", p.Name)
	r.say("Channel namespaces: %s", joinOr(p.ChannelNamespaces, "(none)"))
	r.say("Cloak namespaces: %s", joinOr(p.CloakNamespaces, "(none)"))
	r.say("Group contacts: %s", joinOr(s.contactNames(p, true), "(none)"))
	if p.RegInfo != "" {
		r.say("\"See also\" displayed when registering channels: %s", p.RegInfo)
	}
	if p.OpenRegistration {
		r.say("Anyone may register channels in the project namespace")
	} else {
		r.say("Only group contacts may register channels in the project namespace")
	}
	for _, m := range p.Marks {
		r.say("%s", projects.FormatMark(m, s.dir.CurrentName(m.SetterID, m.SetterName)))
	}
	r.say("*** End of Info ***")

	s.logCommand(ctx, src, "INFO", "PROJECT:INFO: %s", p.Name)
	return r.ok()
}

// contactNames renders a project's contacts by present account name. Annotated names
// carry their hidden and secondary flags.
func (s *Service) contactNames(p projects.ProjectView, annotate bool) []string {
	out := make([]string, 0, len(p.Contacts))
	for _, c := range p.Contacts {
		name := s.accountName(c.Account)
		if annotate {
			var flags []string
			if !c.Visible {
				flags = append(flags, "hidden")
			}
			if c.Secondary {
				flags = append(flags, "secondary")
			}
			if len(flags) > 0 {
				name = fmt.Sprintf("%s (%s)", name, strings.Join(flags, ", "))
			}
		}
		out = append(out, name)
	}
	return out
}

// summary is the one-line form used by LIST and AUDIT.
func (s *Service) summary(p projects.ProjectView) string {
	return fmt.Sprintf("- %s (%s; %s)", p.Name,
		joinOr(p.ChannelNamespaces, "no channels"),
		joinOr(s.contactNames(p, false), "no contacts"))
}

func (s *Service) list(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("LIST", "LIST <pattern>")
	}
	pattern := args[0]

	r := &reply{}
	r.say("Registered projects matching pattern %s:", pattern)
	matches := s.reg.List(pattern)
	for _, p := range matches {
		r.lines = append(r.lines, s.summary(p))
	}
	matchFooter(r, len(matches), "No projects matched pattern %s", pattern)

	s.logCommand(ctx, src, "LIST", "PROJECT:LIST: %s (%d matches)", pattern, len(matches))
	return r.ok()
}

func matchFooter(r *reply, n int, none, pattern string) {
	switch n {
	case 0:
		r.say(none, pattern)
	case 1:
		r.say("1 match for pattern %s", pattern)
	default:
		r.say("%d matches for pattern %s", n, pattern)
	}
}

func (s *Service) listChannel(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("LISTCHANNEL", "LISTCHANNEL <pattern>")
	}
	pattern := args[0]

	r := &reply{}
	r.say("Channel namespaces matching pattern %s:", pattern)
	entries := s.reg.ListChannelNamespaces(pattern)
	for _, e := range entries {
		r.say("- %s (%s)", e.Namespace, e.Project)
	}
	matchFooter(r, len(entries), "No channel namespaces matched pattern %s", pattern)

	s.logCommand(ctx, src, "LISTCHANNEL", "PROJECT:LISTCHANNEL: %s (%d matches)", pattern, len(entries))
	return r.ok()
}

func (s *Service) listCloak(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("LISTCLOAK", "LISTCLOAK <pattern>")
	}
	pattern := args[0]

	r := &reply{}
	r.say("Cloak namespaces matching pattern %s:", pattern)
	entries := s.reg.ListCloakNamespaces(pattern)
	for _, e := range entries {
		r.say("- %s (%s)", e.Namespace, e.Project)
	}
	matchFooter(r, len(entries), "No cloak namespaces matched pattern %s", pattern)

	s.logCommand(ctx, src, "LISTCLOAK", "PROJECT:LISTCLOAK: %s (%d matches)", pattern, len(entries))
	return r.ok()
}

func (s *Service) audit(ctx context.Context, src Source, args []string) Result {
	kind, what := projects.AuditAll, ""
	if len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "CHANNELS":
			kind, what = projects.AuditChannels, "CHANNELS:"
		case "CONTACTS":
			kind, what = projects.AuditContacts, "CONTACTS:"
		default:
			return fail(FaultBadParams, "Syntax: %s", auditSyntax)
		}
	}

	r := &reply{}
	r.say("Projects in need of attention:")
	found := s.reg.Audit(kind)
	for _, p := range found {
		r.lines = append(r.lines, s.summary(p))
	}
	if len(found) == 0 {
		r.say("All projects correctly registered.")
	} else {
		r.say("%d project(s) in need of attention.", len(found))
	}

	s.logCommand(ctx, src, "AUDIT", "PROJECT:AUDIT:%s %d projects", what, len(found))
	return r.ok()
}

func (s *Service) set(ctx context.Context, src Source, args []string) Result {
	if len(args) < 2 {
		return needMore("SET", setSyntax)
	}
	name, setting, params := args[0], strings.ToUpper(args[1]), args[2:]

	switch setting {
	case "NAME":
		return s.setName(ctx, src, name, params)
	case "OPENREG":
		return s.setOpenReg(ctx, src, name, params)
	case "REGINFO":
		return s.setRegInfo(ctx, src, name, params)
	default:
		return fail(FaultBadParams, "Invalid command. Use /msg %s help for a command listing.", s.name)
	}
}

func (s *Service) setName(ctx context.Context, src Source, name string, params []string) Result {
	if len(params) < 1 {
		return needMore("NAME", "SET <project> NAME <new>")
	}
	newName := params[0]

	p, ok := s.reg.Find(name)
	if !ok {
		return s.noSuchProject(name)
	}

	err := s.reg.Rename(p.Name, newName)
	switch {
	case errors.Is(err, projects.ErrInvalidInput):
		return fail(FaultBadParams, "%s is not a valid project name.", newName)
	case errors.Is(err, projects.ErrNoChange):
		return fail(FaultNoChange, "The project name is already set to %s.", newName)
	case errors.Is(err, projects.ErrConflict):
		return fail(FaultAlreadyExists, "A project named %s already exists. Please choose a different name.", newName)
	case err != nil:
		return s.noSuchProject(name)
	}

	s.logCommand(ctx, src, "SET", "PROJECT:SET:NAME: %s to %s", p.Name, newName)
	r := &reply{}
	r.say("The %s project has been renamed to %s.", p.Name, newName)
	return r.ok()
}

func (s *Service) setOpenReg(ctx context.Context, src Source, name string, params []string) Result {
	const syntax = "SET <project> OPENREG ON|OFF"
	if len(params) < 1 {
		return needMore("OPENREG", syntax)
	}

	var open bool
	switch strings.ToUpper(params[0]) {
	case "ON":
		open = true
	case "OFF":
	default:
		return badParams("OPENREG", syntax)
	}
	state := "OFF"
	if open {
		state = "ON"
	}

	p, ok := s.reg.Find(name)
	if !ok {
		return s.noSuchProject(name)
	}
	if err := s.reg.SetOpenRegistration(p.Name, open); err != nil {
		if errors.Is(err, projects.ErrNoChange) {
			return fail(FaultNoChange, "The OPENREG flag is already set to %s for the project %s.", state, p.Name)
		}
		return s.noSuchProject(name)
	}

	s.logCommand(ctx, src, "SET", "PROJECT:SET:OPENREG:%s: %s", state, p.Name)
	r := &reply{}
	if open {
		r.say("The OPENREG flag has been set for the project %s.", p.Name)
	} else {
		r.say("The OPENREG flag has been unset for the project %s.", p.Name)
	}
	return r.ok()
}

func (s *Service) setRegInfo(ctx context.Context, src Source, name string, params []string) Result {
	p, ok := s.reg.Find(name)
	if !ok {
		return s.noSuchProject(name)
	}
	text := strings.Join(params, " ")
	if err := s.reg.SetRegInfo(p.Name, text); err != nil {
		if errors.Is(err, projects.ErrInvalidInput) {
			return fail(FaultBadParams, "The public namespace information may not contain line breaks.")
		}
		return s.noSuchProject(name)
	}

	r := &reply{}
	if text == "" {
		s.logCommand(ctx, src, "SET", "PROJECT:SET:REGINFO:CLEAR: %s", p.Name)
		r.say("The public namespace information for project %s has been cleared.", p.Name)
	} else {
		s.logCommand(ctx, src, "SET", "PROJECT:SET:REGINFO: %s to %s", p.Name, text)
		r.say("The public namespace information for project %s has been set to %s.", p.Name, text)
	}
	return r.ok()
}
