package main

import (
	"bytes"
	"math"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maintenance-gate/internal/client"
	"github.com/maintenance-gate/internal/http/middleware"
	"github.com/maintenance-gate/internal/maintenance"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate := maintenance.New(maintenance.Options{AccessKey: "k"})
	r := gin.New()
	r.Use(middleware.Maintenance(gate))
	srv := httptest.NewServer(r)
	defer srv.Close()

	common := []string{"--server", srv.URL, "--access-key", "k"}

	out, err := run(t, append([]string{"on", "--status", "503", "--body", `{"msg":"down"}`}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Server in maintenance mode now")
	assert.Contains(t, out, `body:   {"msg":"down"}`)

	out, err = run(t, append([]string{"status"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Server in maintenance mode now")

	out, err = run(t, append([]string{"off"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Server in default mode now")
	assert.Equal(t, maintenance.ModeDefault, gate.State().Mode)

	_, err = run(t, "status", "--server", srv.URL, "--access-key", "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOnRejectsInvalidBody(t *testing.T) {
	_, err := run(t, "on", "--body", "not-json", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--body must be a JSON object")
}

func TestPrintResultReportsUnencodableBody(t *testing.T) {
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printResult(cmd, client.Result{
		Message:         "Server in maintenance mode now",
		ResponseOptions: &maintenance.ResponseOptions{StatusCode: 503, Body: map[string]any{"ratio": math.NaN()}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode response body")
	assert.NotContains(t, out.String(), "body:")
}
