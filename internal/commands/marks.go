package commands

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/projectns/projectns/internal/projects"
)

const markSyntax = "MARK <project> ADD|DEL|LIST <note or ID>"

func (s *Service) mark(ctx context.Context, src Source, args []string) Result {
	var op string
	if len(args) >= 2 {
		op = strings.ToUpper(args[1])
	}
	if op != "ADD" && op != "DEL" && op != "LIST" {
		return needMore("MARK", markSyntax)
	}

	p, ok := s.reg.Find(args[0])
	if !ok {
		return s.noSuchProject(args[0])
	}
	rest := args[2:]

	r := &reply{}
	switch op {
	case "DEL":
		const syntax = "MARK <project> DEL <ID>"
		if len(rest) < 1 {
			return needMore("MARK", syntax)
		}
		n, err := strconv.ParseUint(rest[0], 10, 0)
		if err != nil || n == 0 {
			return badParams("MARK", syntax)
		}
		if err := s.reg.DeleteMark(p.Name, uint(n)); err != nil {
			if errors.Is(err, projects.ErrNotFound) {
				return fail(FaultNoSuchKey, "This mark does not exist.")
			}
			return s.noSuchProject(args[0])
		}
		s.logCommand(ctx, src, "MARK", "MARK:DEL: %s %d", p.Name, n)
		r.say("The mark has been deleted.")

	case "ADD":
		text := strings.Join(rest, " ")
		if strings.TrimSpace(text) == "" {
			return needMore("MARK", "MARK <project> ADD <text>")
		}
		if _, err := s.reg.AddMark(p.Name, src.Account, text); err != nil {
			if errors.Is(err, projects.ErrInvalidInput) {
				return fail(FaultBadParams, "Marks may not contain line breaks.")
			}
			return s.namespaceFailure(args[0], err)
		}
		s.logCommand(ctx, src, "MARK", "MARK:ADD: %s %s", p.Name, text)
		r.say("%s has been marked.", p.Name)

	case "LIST":
		if len(rest) > 0 {
			return badParams("MARK", "MARK <project> LIST")
		}
		marks, err := s.reg.Marks(p.Name)
		if err != nil {
			return s.noSuchProject(args[0])
		}
		r.say("Marks for project %s:", p.Name)
		for _, m := range marks {
			r.say("%s", projects.FormatMark(m, s.dir.CurrentName(m.SetterID, m.SetterName)))
		}
		r.say("End of list.")
		s.logCommand(ctx, src, "MARK", "MARK:LIST: %s", p.Name)
	}
	return r.ok()
}
