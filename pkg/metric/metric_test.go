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

package metric

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

func TestRegistrationErrors(t *testing.T) {
	MustCreateNewUint64Metric("/test/dup", "first")
	if _, err := NewUint64Metric("/test/dup", "second"); err != ErrNameInUse {
		t.Errorf("duplicate registration: got err %v, want %v", err, ErrNameInUse)
	}
	if _, err := NewUint64Metric("test/bad", "no slash"); err != ErrInvalidName {
		t.Errorf("bad name: got err %v, want %v", err, ErrInvalidName)
	}
	if _, err := NewUint64Metric("/test/nofield", "empty field", NewField("kind")); err != ErrFieldHasNoAllowedValues {
		t.Errorf("empty field: got err %v, want %v", err, ErrFieldHasNoAllowedValues)
	}
}

func TestFields(t *testing.T) {
	m := MustCreateNewUint64Metric("/test/fields", "by kind", NewField("kind", "a", "b"), NewField("core", "0", "1"))
	m.Increment("a", "1")
	m.IncrementBy(5, "b", "0")
	if got := m.Value("a", "1"); got != 1 {
		t.Errorf("Value(a, 1) = %d, want 1", got)
	}
	if got := m.Value("b", "0"); got != 5 {
		t.Errorf("Value(b, 0) = %d, want 5", got)
	}
	if got := m.Value("a", "0"); got != 0 {
		t.Errorf("Value(a, 0) = %d, want 0", got)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Increment with an unknown field value did not panic")
		}
	}()
	m.Increment("c", "0")
}

func TestWriteText(t *testing.T) {
	c := MustCreateNewUint64Metric("/test/export_counter", "a counter")
	c.IncrementBy(3)
	gauge := uint64(7)
	MustRegisterCustomUint64Metric("/test/export_gauge", false /* cumulative */, "a gauge", func(...string) uint64 { return gauge })

	var buf bytes.Buffer
	if err := WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parsing exported text: %v", err)
	}

	got := map[string]float64{}
	for _, name := range []string{"sunos_test_export_counter", "sunos_test_export_gauge"} {
		mf, ok := parsed[name]
		if !ok {
			t.Fatalf("metric %q missing from export", name)
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				got[name] += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				got[name] += m.GetGauge().GetValue()
			}
		}
	}
	want := map[string]float64{
		"sunos_test_export_counter": 3,
		"sunos_test_export_gauge":   7,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported values mismatch (-want +got):\n%s", diff)
	}
}
