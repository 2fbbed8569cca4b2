package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/offsync/internal/model"
	syncp "github.com/njoerd114/offsync/internal/sync"
)

var (
	taskNotes    string
	taskDue      string
	taskPriority string
	taskTitle    string
	taskAll      bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Work with tasks offline; changes sync on the next pass",
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task locally. It is pushed right away when the remote store is
reachable, otherwise on the next sync.

Example:
  offsync tasks add "Buy milk" --due 2026-11-01 --priority high`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksAdd,
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a task's fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksEdit,
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDone,
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksRm,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks from the local replica",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

func init() {
	for _, c := range []*cobra.Command{tasksAddCmd, tasksEditCmd} {
		c.Flags().StringVar(&taskNotes, "notes", "", "free-form notes")
		c.Flags().StringVar(&taskDue, "due", "", "due date, YYYY-MM-DD or RFC 3339 (\"none\" clears it)")
		c.Flags().StringVar(&taskPriority, "priority", "", "high, medium, low or none")
	}
	tasksEditCmd.Flags().StringVar(&taskTitle, "title", "", "new title")
	tasksListCmd.Flags().BoolVarP(&taskAll, "all", "a", false, "include completed tasks")

	tasksCmd.AddCommand(tasksAddCmd, tasksEditCmd, tasksDoneCmd, tasksRmCmd, tasksListCmd)
	rootCmd.AddCommand(tasksCmd)
}

// openTasks opens a session and returns the tasks collection.
func openTasks() (*session, *syncp.Collection[model.Task], error) {
	s, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.RequireTasks()
	if err != nil {
		s.close()
		return nil, nil, err
	}
	return s, tasks, nil
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	s, tasks, err := openTasks()
	if err != nil {
		return err
	}
	defer s.close()

	task := model.Task{Title: args[0], Notes: taskNotes, Owner: s.Config.ActorID}
	if err := applyTaskFlags(cmd, &task); err != nil {
		return err
	}

	rec, err := tasks.Create(s.Context(cmd.Context()), task)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", rec.LocalID, rec.Status)
	return nil
}

func runTasksEdit(cmd *cobra.Command, args []string) error {
	return editTask(cmd, args[0], func(t *model.Task) error {
		if cmd.Flags().Changed("title") {
			t.Title = taskTitle
		}
		if cmd.Flags().Changed("notes") {
			t.Notes = taskNotes
		}
		return applyTaskFlags(cmd, t)
	})
}

func runTasksDone(cmd *cobra.Command, args []string) error {
	return editTask(cmd, args[0], func(t *model.Task) error {
		t.Completed = true
		return nil
	})
}

func runTasksRm(cmd *cobra.Command, args []string) error {
	s, tasks, err := openTasks()
	if err != nil {
		return err
	}
	defer s.close()

	if err := tasks.Delete(s.Context(cmd.Context()), args[0]); err != nil {
		return taskErr(args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	s, tasks, err := openTasks()
	if err != nil {
		return err
	}
	defer s.close()

	recs, err := tasks.List(cmd.Context())
	if err != nil {
		return err
	}
	printTasks(cmd.OutOrStdout(), recs, taskAll)
	return nil
}

// editTask loads the task, applies fn and stores the result.
func editTask(cmd *cobra.Command, id string, fn func(*model.Task) error) error {
	s, tasks, err := openTasks()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := s.Context(cmd.Context())
	rec, err := tasks.Get(ctx, id)
	if err != nil {
		return taskErr(id, err)
	}
	task := rec.Payload
	if err := fn(&task); err != nil {
		return err
	}
	rec, err = tasks.Update(ctx, id, task)
	if err != nil {
		return taskErr(id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", rec.LocalID, rec.Status)
	return nil
}

func applyTaskFlags(cmd *cobra.Command, t *model.Task) error {
	if cmd.Flags().Changed("priority") {
		p, err := model.ParsePriority(taskPriority)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if cmd.Flags().Changed("due") {
		due, err := parseDue(taskDue)
		if err != nil {
			return err
		}
		t.Due = due
	}
	return nil
}

// parseDue accepts a date, an RFC 3339 timestamp, or "none"/"" to clear.
func parseDue(s string) (*time.Time, error) {
	if s == "" || s == "none" {
		return nil, nil
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return &d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --due %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return &d, nil
}

func taskErr(id string, err error) error {
	if errors.Is(err, syncp.ErrNotFound) {
		return fmt.Errorf("no task with id %s", id)
	}
	return err
}

func printTasks(out io.Writer, recs []*syncp.Record[model.Task], all bool) {
	shown := 0
	for _, rec := range recs {
		t := rec.Payload
		if t.Completed && !all {
			continue
		}
		shown++
		box := "[ ]"
		if t.Completed {
			box = green("[x]")
		}
		line := fmt.Sprintf("%s %s  %s", box, faint(rec.LocalID), t.Title)
		if t.Priority != model.PriorityNone {
			line += "  " + yellow("!"+t.Priority.String())
		}
		if t.Due != nil {
			line += "  due " + t.Due.Local().Format(time.DateOnly)
		}
		if rec.Status.Pending() {
			line += "  " + faint("("+rec.Status.String()+")")
		}
		fmt.Fprintln(out, line)
	}
	if shown == 0 {
		fmt.Fprintln(out, "No tasks.")
	}
}
