package service

import (
	"context"
	"fmt"
)

// RunnableService is a long-running part of the app with a lifecycle.
type RunnableService interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group manages a bunch of services as one.
type Group struct {
	list []RunnableService
}

func (g *Group) Add(services ...RunnableService) { g.list = append(g.list, services...) }

// Start starts each service in the group.
func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Shutdown stops every service, collecting the errors instead of
// stopping at the first one.
func (g *Group) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, s := range g.list {
		if err := s.Shutdown(ctx); err != nil && err != context.Canceled {
			errs = append(errs, fmt.Errorf("couldn't stop [%s]: %v", s, err))
		}
	}
	if len(errs) > 0 {
		err = fmt.Errorf("%s", errs)
	}
	return
}
