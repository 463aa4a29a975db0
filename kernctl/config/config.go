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

// Package config provides basic infrastructure to set configuration settings
// for kernctl. Each setting is a flag, and may also be set in a TOML file.
package config

import (
	"fmt"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/sun-23/sun-xv6-rspi3-os/pkg/log"
)

// Limits on the machine's shape.
const (
	MaxCPUs  = 8
	MaxProcs = 1024

	// minFrames leaves room for init, its children, and their tables.
	minFrames = 64
)

// Config holds configuration that is not part of the machine images.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name and a matching toml key.
//  3. Register a new flag in flags.go, with name and description.
//  4. Add any necessary validation into validate().
type Config struct {
	// CPUs is the number of cores, each running its own scheduler.
	CPUs uint `flag:"cpus" toml:"cpus"`

	// Procs is the size of the process table.
	Procs int `flag:"procs" toml:"procs"`

	// Frames is the number of physical frames of machine memory.
	Frames int `flag:"frames" toml:"frames"`

	// ReservedFrames are frames at the bottom of memory held by the kernel
	// image and never handed to the allocator.
	ReservedFrames int `flag:"reserved-frames" toml:"reserved_frames"`

	// Quantum is the number of user instructions a process runs before the
	// timer interrupts it.
	Quantum int `flag:"quantum" toml:"quantum"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log_format"`

	// InitPrograms are the programs init runs in order. If empty, init runs
	// every built-in self-test.
	InitPrograms ProgramList `flag:"init" toml:"init"`

	// Timeout bounds how long the machine runs. Zero means no limit.
	Timeout time.Duration `flag:"timeout" toml:"timeout"`
}

func (c *Config) validate() error {
	if c.CPUs < 1 || c.CPUs > MaxCPUs {
		return fmt.Errorf("cpus must be between 1 and %d, got: %d", MaxCPUs, c.CPUs)
	}
	if c.Procs < 1 || c.Procs > MaxProcs {
		return fmt.Errorf("procs must be between 1 and %d, got: %d", MaxProcs, c.Procs)
	}
	if c.ReservedFrames < 0 {
		return fmt.Errorf("reserved-frames must be positive, got: %d", c.ReservedFrames)
	}
	if c.Frames-c.ReservedFrames < minFrames {
		return fmt.Errorf("at least %d unreserved frames are required, got: %d", minFrames, c.Frames-c.ReservedFrames)
	}
	if c.Quantum < 1 {
		return fmt.Errorf("quantum must be positive, got: %d", c.Quantum)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	for _, p := range c.InitPrograms {
		if !path.IsAbs(p) {
			return fmt.Errorf("init program %q is not an absolute path", p)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got: %v", c.Timeout)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		log.Infof("  %s: %s", st.Field(i).Name, getVal(obj.Field(i)))
	}
}

// ProgramList is a comma-separated list of program paths.
type ProgramList []string

// String implements flag.Value.String.
func (p *ProgramList) String() string {
	return strings.Join(*p, ",")
}

// Get implements flag.Getter.Get.
func (p *ProgramList) Get() any {
	return *p
}

// Set implements flag.Value.Set.
func (p *ProgramList) Set(v string) error {
	*p = nil
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*p = append(*p, s)
		}
	}
	return nil
}
