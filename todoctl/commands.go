package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/reorder"
	"github.com/i-Mobyl/cursor-todo-app/session"
)

type app struct {
	owner   string
	memory  bool
	verbose bool
	connect connectFunc
	logger  *log.Logger
}

func (a *app) open(ctx context.Context) (*listview.View, error) {
	sess, err := session.New(a.owner)
	if err != nil {
		return nil, err
	}
	store, feed, err := a.connect(a.memory, a.logger)
	if err != nil {
		return nil, err
	}
	return listview.Open(ctx, sess, store, feed, a.logger)
}

// withView opens the owner's list, runs fn and prints the resulting list.
func (a *app) withView(cmd *cobra.Command, fn func(ctx context.Context, v *listview.View) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := fn(ctx, v); err != nil {
		return err
	}
	return printTasks(cmd.OutOrStdout(), v.Tasks())
}

// taskAt resolves a 1-based list position or a task id.
func taskAt(v *listview.View, ref string) (domain.Task, error) {
	tasks := v.Tasks()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(tasks) {
			return domain.Task{}, fmt.Errorf("position %d: %w", n, domain.ErrTaskNotFound)
		}
		return tasks[n-1], nil
	}
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%s: %w", ref, domain.ErrTaskNotFound)
}

func printTasks(w io.Writer, tasks []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDONE\tTEXT\tDUE\tID")
	for i, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.String()
		}
		fmt.Fprintf(tw, "%d\t[%s]\t%s\t%s\t%s\n", i+1, done, t.Text, due, t.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := domain.ProgressOf(tasks)
	_, err := fmt.Fprintf(w, "%d/%d done (%d%%)\n", p.Completed, p.Total, p.Percent)
	return err
}

func listCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show tasks in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				return a.withView(cmd, func(context.Context, *listview.View) error { return nil })
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer v.Close()
			enc := sonic.ConfigStd.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Tasks    []domain.Task   `json:"tasks"`
				Progress domain.Progress `json:"progress"`
			}{v.Tasks(), v.Progress()})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func addCmd(a *app) *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Add a task at the end of the list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dueDate *domain.Date
			if due != "" {
				d, err := domain.ParseDate(due)
				if err != nil {
					return err
				}
				dueDate = &d
			}
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				_, err := v.Add(ctx, strings.Join(args, " "), dueDate)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&due, "due", "d", "", "Due date (YYYY-MM-DD)")
	return cmd
}

func toggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [position|id]",
		Short: "Flip a task between done and not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				t, err := taskAt(v, args[0])
				if err != nil {
					return err
				}
				return v.Toggle(ctx, t.ID)
			})
		},
	}
}

func editCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [position|id] [text...]",
		Short: "Replace a task's text",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				t, err := taskAt(v, args[0])
				if err != nil {
					return err
				}
				if err := v.StartEdit(t.ID); err != nil {
					return err
				}
				return v.SaveEdit(ctx, strings.Join(args[1:], " "))
			})
		},
	}
}

func dueCmd(a *app) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "due [position|id] [YYYY-MM-DD]",
		Short: "Set or clear a task's due date",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear == (len(args) == 2) {
				return fmt.Errorf("give either a date or --clear")
			}
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				t, err := taskAt(v, args[0])
				if err != nil {
					return err
				}
				if clear {
					return v.ClearDueDate(ctx, t.ID)
				}
				d, err := domain.ParseDate(args[1])
				if err != nil {
					return err
				}
				return v.SetDueDate(ctx, t.ID, d)
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the due date")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [position|id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				t, err := taskAt(v, args[0])
				if err != nil {
					return err
				}
				return v.Delete(ctx, t.ID)
			})
		},
	}
}

// sortAndCommit runs one sort session: begin, the given moves, done. On a
// bad move the view is discarded without committing.
func sortAndCommit(ctx context.Context, v *listview.View, moves ...[2]int) error {
	if err := v.BeginSort(); err != nil {
		return err
	}
	for _, m := range moves {
		if err := v.Move(m[0], m[1]); err != nil {
			return err
		}
	}
	err := v.DoneSorting(ctx)
	var commitErr *reorder.CommitError
	if errors.As(err, &commitErr) {
		return fmt.Errorf("order not saved: %w", commitErr.Err)
	}
	return err
}

func moveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move [from] [to]",
		Short: "Move the task at one list position to another and save the order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("from: %w", err)
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("to: %w", err)
			}
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				return sortAndCommit(ctx, v, [2]int{from - 1, to - 1})
			})
		},
	}
}

func renumberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renumber",
		Short: "Rewrite every task's order as its current list position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withView(cmd, func(ctx context.Context, v *listview.View) error {
				return sortAndCommit(ctx, v)
			})
		},
	}
}
