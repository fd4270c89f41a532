package dag

import (
	"fmt"
	"strings"
)

// Axis is one named dimension of a job's matrix.
type Axis struct {
	Name   string
	Values []string
}

// Matrix is an ordered list of axes. Order matters: the first axis varies slowest.
type Matrix []Axis

// Size returns the number of instances the matrix expands to.
func (m Matrix) Size() int {
	n := 1
	for _, ax := range m {
		n *= len(ax.Values)
	}
	return n
}

// Names returns the axis names in declaration order.
func (m Matrix) Names() []string {
	names := make([]string, len(m))
	for i, ax := range m {
		names[i] = ax.Name
	}
	return names
}

func (m Matrix) validate(jobID string) error {
	seen := make(map[string]bool, len(m))
	for _, ax := range m {
		if ax.Name == "" {
			return errInvalidMatrix(jobID, "axis with empty name")
		}
		if seen[ax.Name] {
			return errInvalidMatrix(jobID, fmt.Sprintf("axis %q declared twice", ax.Name))
		}
		seen[ax.Name] = true
		if len(ax.Values) == 0 {
			return errInvalidMatrix(jobID, fmt.Sprintf("axis %q has no values", ax.Name))
		}
		vals := make(map[string]bool, len(ax.Values))
		for _, v := range ax.Values {
			if vals[v] {
				return errInvalidMatrix(jobID, fmt.Sprintf("axis %q repeats value %q", ax.Name, v))
			}
			vals[v] = true
		}
	}
	return nil
}

// AxisValue binds one axis to one of its values.
type AxisValue struct {
	Axis  string
	Value string
}

// Assignment is one point of a matrix: a value for every axis, in axis order.
type Assignment []AxisValue

// Get returns the value bound to axis.
func (a Assignment) Get(axis string) (string, bool) {
	for _, av := range a {
		if av.Axis == axis {
			return av.Value, true
		}
	}
	return "", false
}

// Map returns the assignment as a map from axis name to value.
func (a Assignment) Map() map[string]string {
	m := make(map[string]string, len(a))
	for _, av := range a {
		m[av.Axis] = av.Value
	}
	return m
}

// Values returns the bound values in axis order.
func (a Assignment) Values() []string {
	vals := make([]string, len(a))
	for i, av := range a {
		vals[i] = av.Value
	}
	return vals
}

// String renders the values in axis order, e.g. "ubuntu, 1.22".
func (a Assignment) String() string {
	return strings.Join(a.Values(), ", ")
}

// InstanceID derives the display id of an instance, e.g. "test (ubuntu, 1.22)".
// Jobs without a matrix use the bare job id.
func InstanceID(jobID string, a Assignment) string {
	if len(a) == 0 {
		return jobID
	}
	return fmt.Sprintf("%s (%s)", jobID, a)
}

// Expand produces one pending instance per point of the job's matrix: the
// Cartesian product of the axes in declared order, first axis slowest, values
// in declared order. A job without axes yields exactly one instance with an
// empty assignment.
func Expand(job *JobSpec) []*JobInstance {
	total := job.Matrix.Size()
	instances := make([]*JobInstance, 0, total)

	// odometer over axis value indices; the last axis turns fastest
	idx := make([]int, len(job.Matrix))
	for n := 0; n < total; n++ {
		a := make(Assignment, len(job.Matrix))
		for i, ax := range job.Matrix {
			a[i] = AxisValue{Axis: ax.Name, Value: ax.Values[idx[i]]}
		}
		instances = append(instances, &JobInstance{
			JobID:      job.ID,
			ID:         InstanceID(job.ID, a),
			Index:      n,
			Assignment: a,
			Status:     StatusPending,
		})

		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(job.Matrix[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return instances
}
