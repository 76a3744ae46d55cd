package main

import (
	"context"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

// echoAgent is the built-in demonstration agent: it answers requests with
// the request content and completes delegated tasks by echoing the
// description. Real hosts register their own agents through
// service.RegisterAll instead.
type echoAgent struct {
	id   string
	name string
}

func (a *echoAgent) ID() string      { return a.id }
func (a *echoAgent) Name() string    { return a.name }
func (a *echoAgent) Tools() []string { return []string{"echo"} }

func (a *echoAgent) HandleRequest(_ context.Context, msg *a2a.Message) (string, error) {
	return msg.Content, nil
}

func (a *echoAgent) ExecuteTask(_ context.Context, task *a2a.Task) (string, error) {
	return task.Description, nil
}
