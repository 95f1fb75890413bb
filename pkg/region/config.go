//go:build unix

/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultPayloadSize   = 4096
	defaultAttachTimeout = 5 * time.Second

	// maxPayloadSize caps a region at 1 GiB. Larger segments point at a
	// sizing bug rather than a real need.
	maxPayloadSize = 1 << 30

	instrumentationName = "github.com/srediag/shm-atomics/pkg/region"
)

// Config holds region creation and attach parameters.
type Config struct {
	// PayloadSize is the usable byte count behind the region header.
	PayloadSize int

	// AttachTimeout bounds how long Attach keeps retrying while it waits
	// for the creator to publish the region.
	AttachTimeout time.Duration

	// Meter receives region lifecycle instruments. Defaults to a noop meter.
	Meter metric.Meter

	// Tracer wraps create and attach in spans. Defaults to a noop tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PayloadSize:   defaultPayloadSize,
		AttachTimeout: defaultAttachTimeout,
	}
}

// VerifyConfig checks whether the config is legal.
func VerifyConfig(config *Config) error {
	if config.PayloadSize <= 0 {
		return fmt.Errorf("payload size %d, must be positive", config.PayloadSize)
	}
	if config.PayloadSize > maxPayloadSize {
		return fmt.Errorf("payload size %d, must not exceed %d", config.PayloadSize, maxPayloadSize)
	}
	if config.AttachTimeout <= 0 {
		return fmt.Errorf("attach timeout %s, must be positive", config.AttachTimeout)
	}
	return nil
}

func (c *Config) meter() metric.Meter {
	if c.Meter != nil {
		return c.Meter
	}
	return noopmetric.NewMeterProvider().Meter(instrumentationName)
}

func (c *Config) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return nooptrace.NewTracerProvider().Tracer(instrumentationName)
}
