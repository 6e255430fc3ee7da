package timesheet

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

const unspecifiedLabel = "(unspecified)"

// ReportInput は集計条件です。完了済みタスクのみが対象です。
type ReportInput struct {
	From       *time.Time
	To         *time.Time
	EmployeeID string
	Customer   string
	TaskTypeID string
}

// ReportTotals は集計値です。
type ReportTotals struct {
	Tasks   int
	Minutes float64
	Hours   float64
	Cost    float64
}

// ReportGroup はキーごとの集計結果です。
type ReportGroup struct {
	Key    string
	Label  string
	Totals ReportTotals
}

// Report は完了済みタスクの集計結果です。週は月曜始まりです。
type Report struct {
	Totals     ReportTotals
	ByEmployee []ReportGroup
	ByCustomer []ReportGroup
	ByTaskType []ReportGroup
	ByWeek     []ReportGroup
	Degraded   bool
}

// Report は完了済みタスクを集計します。
func (s *Service) Report(ctx context.Context, in ReportInput) (*Report, error) {
	completed := TaskStatusCompleted
	list, err := s.ListTasks(ctx, TaskFilter{
		EmployeeID: in.EmployeeID,
		TaskTypeID: in.TaskTypeID,
		Customer:   in.Customer,
		From:       in.From,
		To:         in.To,
		Status:     &completed,
	})
	if err != nil {
		return nil, err
	}

	var (
		totals     accumulator
		byEmployee = newGrouping()
		byCustomer = newGrouping()
		byTaskType = newGrouping()
		byWeek     = newGrouping()
	)
	for _, task := range list.Tasks {
		minutes := valueOrZero(task.DurationMinutes)
		cost := valueOrZero(task.Cost)

		totals.add(minutes, cost)
		byEmployee.add(task.EmployeeID, task.EmployeeName, minutes, cost)
		byCustomer.add(task.Customer, task.Customer, minutes, cost)
		byTaskType.add(task.TaskTypeID, task.TaskName, minutes, cost)
		if !task.Date.IsZero() {
			week := weekStart(s.dateOf(task.Date)).Format("2006-01-02")
			byWeek.add(week, week, minutes, cost)
		}
	}

	return &Report{
		Totals:     totals.totals(),
		ByEmployee: byEmployee.groups(),
		ByCustomer: byCustomer.groups(),
		ByTaskType: byTaskType.groups(),
		ByWeek:     byWeek.groups(),
		Degraded:   list.Degraded,
	}, nil
}

type accumulator struct {
	tasks   int
	minutes float64
	cost    float64
}

func (a *accumulator) add(minutes, cost float64) {
	a.tasks++
	a.minutes += minutes
	a.cost += cost
}

func (a *accumulator) totals() ReportTotals {
	return ReportTotals{
		Tasks:   a.tasks,
		Minutes: a.minutes,
		Hours:   a.minutes / 60,
		Cost:    math.Round(a.cost*100) / 100,
	}
}

type grouping struct {
	labels map[string]string
	acc    map[string]*accumulator
}

func newGrouping() *grouping {
	return &grouping{labels: make(map[string]string), acc: make(map[string]*accumulator)}
}

func (g *grouping) add(key, label string, minutes, cost float64) {
	acc, ok := g.acc[key]
	if !ok {
		acc = &accumulator{}
		g.acc[key] = acc
		label = strings.TrimSpace(label)
		if label == "" {
			label = unspecifiedLabel
		}
		g.labels[key] = label
	}
	acc.add(minutes, cost)
}

func (g *grouping) groups() []ReportGroup {
	out := make([]ReportGroup, 0, len(g.acc))
	for key, acc := range g.acc {
		out = append(out, ReportGroup{Key: key, Label: g.labels[key], Totals: acc.totals()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}

// weekStart は日付を含む週の月曜日を返します。
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
