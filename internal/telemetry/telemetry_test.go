// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Spans must still be usable against the default no-op provider.
	_, span := otel.Tracer(TracerName).Start(context.Background(), "probe")
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestInitEnabledInstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	defer otel.SetTracerProvider(before)

	shutdown, err := Init(Config{
		ServiceName:    "dosimeter",
		ServiceVersion: "test",
		Enabled:        true,
	})
	require.NoError(t, err)

	assert.NotEqual(t, before, otel.GetTracerProvider())

	_, span := otel.Tracer(TracerName).Start(context.Background(), "probe")
	span.End()

	require.NoError(t, shutdown(context.Background()))
}
