package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/projects"
	"github.com/projectns/projectns/internal/validation"
)

const (
	channelSyntax = "CHANNEL <project> ADD|DEL <#namespace>"
	cloakSyntax   = "CLOAK <project> ADD|DEL <namespace>"
)

// namespaceArgs validates the <project> ADD|DEL <namespace> shape shared by CHANNEL
// and CLOAK. A namespace with an unknown mode is a bad parameter; anything shorter is
// missing parameters.
func namespaceArgs(what, syntax string, args []string) (project, mode, ns string, res *Result) {
	if len(args) >= 2 {
		mode = strings.ToUpper(args[1])
	}
	if len(args) < 3 || (mode != "ADD" && mode != "DEL") {
		var r Result
		if len(args) >= 3 {
			r = badParams(what, syntax)
		} else {
			r = needMore(what, syntax)
		}
		return "", "", "", &r
	}
	return args[0], mode, args[2], nil
}

func (s *Service) channel(ctx context.Context, src Source, args []string) Result {
	name, mode, ns, bad := namespaceArgs("CHANNEL", channelSyntax, args)
	if bad != nil {
		return *bad
	}

	p, ok := s.reg.Find(name)
	if !ok {
		return s.noSuchProject(name)
	}

	r := &reply{}
	if mode == "ADD" {
		// Format is checked on ADD only, so entries that no longer pass can still be removed.
		if err := validation.ValidateChannelNamespace(ns, s.reg.Options().ChannelLength); err != nil {
			if errors.Is(err, validation.ErrInvalidCharacters) {
				return fail(FaultBadParams, "The provided channel name contains invalid characters.")
			}
			return fail(FaultBadParams, "%s is not a valid channel name.", ns)
		}
		err := s.reg.AddChannelNamespace(p.Name, ns)
		var nsErr *projects.NamespaceError
		switch {
		case errors.As(err, &nsErr) && errors.Is(err, projects.ErrNotRoot):
			return fail(FaultBadParams, "%s is not a namespace root. Please register %s instead.", ns, nsErr.Root)
		case errors.As(err, &nsErr) && errors.Is(err, projects.ErrConflict):
			return fail(FaultAlreadyExists, "The %s namespace already belongs to project %s.", ns, nsErr.Owner)
		case err != nil:
			return s.namespaceFailure(name, err)
		}
		s.logCommand(ctx, src, "CHANNEL", "PROJECT:CHANNEL:ADD: %s to %s", ns, p.Name)
		r.say("The namespace %s was registered to project %s.", ns, p.Name)
		return r.ok()
	}

	if err := s.reg.RemoveChannelNamespace(p.Name, ns); err != nil {
		return s.removeFailure(name, ns, err)
	}
	s.logCommand(ctx, src, "CHANNEL", "PROJECT:CHANNEL:DEL: %s from %s", ns, p.Name)
	r.say("The namespace %s was unregistered from project %s.", ns, p.Name)
	return r.ok()
}

func (s *Service) cloak(ctx context.Context, src Source, args []string) Result {
	name, mode, raw, bad := namespaceArgs("CLOAK", cloakSyntax, args)
	if bad != nil {
		return *bad
	}

	ns := namespace.CanonicalCloak(raw)
	p, ok := s.reg.Find(name)
	if !ok {
		return s.noSuchProject(name)
	}

	r := &reply{}
	if mode == "ADD" {
		if err := validation.ValidateCloakNamespace(ns, s.reg.Options().CloakLength); err != nil {
			switch {
			case errors.Is(err, validation.ErrTooLong):
				return fail(FaultBadParams, "The provided cloak namespace is too long.")
			case errors.Is(err, validation.ErrWildcard), errors.Is(err, validation.ErrEmpty):
				return fail(FaultBadParams, "Please specify only the base part of the cloak namespace.")
			default:
				return fail(FaultBadParams, "The provided cloak namespace contains invalid characters.")
			}
		}
		_, err := s.reg.AddCloakNamespace(p.Name, ns)
		var nsErr *projects.NamespaceError
		switch {
		case errors.As(err, &nsErr) && errors.Is(err, projects.ErrNoChange):
			return fail(FaultNoChange, "The %s namespace is already registered to project %s.", ns, p.Name)
		case errors.As(err, &nsErr) && errors.Is(err, projects.ErrConflict):
			return fail(FaultAlreadyExists, "The %s namespace already belongs to project %s.", ns, nsErr.Owner)
		case err != nil:
			return s.namespaceFailure(name, err)
		}
		s.logCommand(ctx, src, "CLOAK", "PROJECT:CLOAK:ADD: %s to %s", ns, p.Name)
		r.say("The namespace %s was registered to project %s.", ns, p.Name)
		return r.ok()
	}

	if _, err := s.reg.RemoveCloakNamespace(p.Name, ns); err != nil {
		return s.removeFailure(name, ns, err)
	}
	s.logCommand(ctx, src, "CLOAK", "PROJECT:CLOAK:DEL: %s from %s", ns, p.Name)
	r.say("The namespace %s was unregistered from project %s.", ns, p.Name)
	return r.ok()
}

func (s *Service) removeFailure(project, ns string, err error) Result {
	var nsErr *projects.NamespaceError
	if errors.As(err, &nsErr) {
		switch {
		case errors.Is(err, projects.ErrWrongOwner):
			return fail(FaultNoSuchKey, "The %s namespace is registered to project %s, but you tried to remove it from project %s.", ns, nsErr.Owner, project)
		case errors.Is(err, projects.ErrNotFound):
			return fail(FaultNoChange, "The %s namespace is not registered to any project.", ns)
		}
	}
	return s.namespaceFailure(project, err)
}

// namespaceFailure covers the project disappearing between lookup and mutation.
func (s *Service) namespaceFailure(project string, err error) Result {
	if errors.Is(err, projects.ErrNotFound) {
		return s.noSuchProject(project)
	}
	return fail(FaultBadParams, "Invalid parameters: %v", err)
}
