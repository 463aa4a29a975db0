// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metric provides primitives for collecting metrics and exporting
// them in Prometheus text format.
package metric

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Prefix is prepended to every exported metric name.
const Prefix = "sunos"

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that a metric name is not of the form
	// "/component/name".
	ErrInvalidName = errors.New("metric name must start with '/' and contain only [a-z0-9_/]")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")
)

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	name          string
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues ...string) Field {
	return Field{name: name, allowedValues: allowedValues}
}

type customUint64Metric struct {
	name        string
	description string
	cumulative  bool
	fields      []Field

	// value returns the current value of the metric for the given set of
	// fields.
	value func(fieldValues ...string) uint64
}

var (
	mu sync.Mutex

	// allMetrics are the registered metrics, by name.
	allMetrics = make(map[string]customUint64Metric)
)

func validName(name string) bool {
	if len(name) < 2 || name[0] != '/' {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '/') {
			return false
		}
	}
	return true
}

// RegisterCustomUint64Metric registers a metric with the given name. value is
// called at export time for every combination of allowed field values.
func RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	if !validName(name) {
		return ErrInvalidName
	}
	for _, f := range fields {
		if len(f.allowedValues) == 0 {
			return ErrFieldHasNoAllowedValues
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := allMetrics[name]; ok {
		return ErrNameInUse
	}
	allMetrics[name] = customUint64Metric{
		name:        name,
		description: description,
		cumulative:  cumulative,
		fields:      fields,
		value:       value,
	}
	return nil
}

// MustRegisterCustomUint64Metric calls RegisterCustomUint64Metric and panics
// if it returns an error.
func MustRegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) {
	if err := RegisterCustomUint64Metric(name, cumulative, description, value, fields...); err != nil {
		panic(fmt.Sprintf("Unable to register metric %q: %s", name, err))
	}
}

// Uint64Metric encapsulates a uint64 counter, optionally broken down by
// fields.
type Uint64Metric struct {
	fields []Field

	// counters is indexed by the position of the field value combination.
	counters []atomic.Uint64
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	n := 1
	for _, f := range fields {
		n *= len(f.allowedValues)
	}
	m := &Uint64Metric{
		fields:   fields,
		counters: make([]atomic.Uint64, n),
	}
	return m, RegisterCustomUint64Metric(name, true /* cumulative */, description, m.Value, fields...)
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

func (m *Uint64Metric) key(fieldValues []string) int {
	if len(fieldValues) != len(m.fields) {
		panic(fmt.Sprintf("got %d field values, want %d", len(fieldValues), len(m.fields)))
	}
	key := 0
	for i, f := range m.fields {
		idx := -1
		for j, v := range f.allowedValues {
			if v == fieldValues[i] {
				idx = j
				break
			}
		}
		if idx < 0 {
			panic(fmt.Sprintf("invalid value %q for field %q", fieldValues[i], f.name))
		}
		key = key*len(f.allowedValues) + idx
	}
	return key
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.counters[m.key(fieldValues)].Load()
}

// Increment increments the metric field by 1.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.counters[m.key(fieldValues)].Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.counters[m.key(fieldValues)].Add(v)
}

// ExportName returns the Prometheus name of the metric registered as name.
func ExportName(name string) string {
	return Prefix + strings.ReplaceAll(name, "/", "_")
}

// combinations calls fn with every combination of allowed field values.
func combinations(fields []Field, prefix []string, fn func([]string)) {
	if len(fields) == 0 {
		fn(prefix)
		return
	}
	for _, v := range fields[0].allowedValues {
		combinations(fields[1:], append(prefix, v), fn)
	}
}

// Families returns a snapshot of every registered metric, sorted by name.
func Families() []*dto.MetricFamily {
	mu.Lock()
	ms := make([]customUint64Metric, 0, len(allMetrics))
	for _, m := range allMetrics {
		ms = append(ms, m)
	}
	mu.Unlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })

	families := make([]*dto.MetricFamily, 0, len(ms))
	for _, m := range ms {
		typ := dto.MetricType_GAUGE
		if m.cumulative {
			typ = dto.MetricType_COUNTER
		}
		mf := &dto.MetricFamily{
			Name: proto.String(ExportName(m.name)),
			Help: proto.String(m.description),
			Type: typ.Enum(),
		}
		combinations(m.fields, nil, func(values []string) {
			val := float64(m.value(values...))
			metric := &dto.Metric{}
			for i, f := range m.fields {
				metric.Label = append(metric.Label, &dto.LabelPair{
					Name:  proto.String(f.name),
					Value: proto.String(values[i]),
				})
			}
			if m.cumulative {
				metric.Counter = &dto.Counter{Value: proto.Float64(val)}
			} else {
				metric.Gauge = &dto.Gauge{Value: proto.Float64(val)}
			}
			mf.Metric = append(mf.Metric, metric)
		})
		families = append(families, mf)
	}
	return families
}

// WriteText writes every registered metric to w in Prometheus text format.
func WriteText(w io.Writer) error {
	for _, mf := range Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %q: %w", mf.GetName(), err)
		}
	}
	return nil
}
