package commands

import (
	"context"
	"fmt"
	"strings"
)

func (s *Service) help(_ context.Context, src Source, args []string) Result {
	if !src.Has(PrivAuspex) {
		return fail(FaultNoPrivs, "%s provides utility functionality for network staff. It has no public interface.", s.name)
	}

	r := &reply{}
	if len(args) == 0 {
		r.say("***** %s Help *****", s.name)
		r.say("%s maintains the registry of projects and the namespaces they own.", s.name)
		r.say("")
		for _, name := range s.order {
			c := s.commands[name]
			if c.priv != "" && !src.Has(c.priv) {
				continue
			}
			r.say("%-12s %s", c.name, c.help)
		}
		r.say("***** End of Help *****")
		return r.ok()
	}

	verb := strings.ToUpper(args[0])
	c, ok := s.commands[verb]
	if !ok {
		return fail(FaultNoSuchTarget, "No help available for %s.", args[0])
	}
	r.say("***** %s Help *****", s.name)
	r.say("Help for %s:", c.name)
	r.say("%s", c.help)
	if c.priv != "" {
		r.say("Requires the %s privilege.", c.priv)
	}
	for _, syn := range c.syntax {
		r.say("Syntax: %s", syn)
	}
	if len(c.subs) > 0 {
		r.say("")
		r.say("Available settings:")
		for _, sub := range c.subs {
			r.lines = append(r.lines, fmt.Sprintf("%-12s %s", sub.name, sub.help))
		}
	}
	r.say("***** End of Help *****")
	return r.ok()
}
