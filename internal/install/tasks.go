// File: internal/install/tasks.go
package install

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/kickstart-cli/internal/browser"
	"github.com/xkilldash9x/kickstart-cli/internal/browser/dom"
)

// TaskStatus is the state the wizard shows for a task.
type TaskStatus string

const (
	StatusTodo   TaskStatus = "todo"
	StatusActive TaskStatus = "active"
	StatusDone   TaskStatus = "done"
)

// Task is one entry of the wizard's task list.
type Task struct {
	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`
}

// SelectorTaskList matches every task entry, in rendering order.
const SelectorTaskList = ".task-list li"

var annotation = regexp.MustCompile(`\s*\([^)]*\)`)

// NormalizeTaskName turns a label such as "Set up database (active)" into
// "set_up_database". Normalizing a normalized name returns it unchanged.
func NormalizeTaskName(label string) string {
	name := annotation.ReplaceAllString(label, "")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

// statusFromClass reads the status from the class attribute tokens. Entries
// without a recognized token are still to do.
func statusFromClass(class string) TaskStatus {
	switch {
	case dom.HasClass(class, string(StatusActive)):
		return StatusActive
	case dom.HasClass(class, string(StatusDone)):
		return StatusDone
	default:
		return StatusTodo
	}
}

// ReadTasks scrapes the task list of the current page.
func ReadTasks(ctx context.Context, client browser.Client) ([]Task, error) {
	items, err := client.FindAll(ctx, SelectorTaskList)
	if err != nil {
		return nil, fmt.Errorf("failed to read install tasks: %w", err)
	}

	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		label, err := item.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read install task label: %w", err)
		}
		class, _, err := item.Attribute(ctx, "class")
		if err != nil {
			return nil, fmt.Errorf("failed to read install task status: %w", err)
		}
		tasks = append(tasks, Task{Name: NormalizeTaskName(label), Status: statusFromClass(class)})
	}
	return tasks, nil
}

// CurrentTask returns the name of the first active task.
func CurrentTask(tasks []Task) (string, bool) {
	for _, t := range tasks {
		if t.Status == StatusActive {
			return t.Name, true
		}
	}
	return "", false
}
