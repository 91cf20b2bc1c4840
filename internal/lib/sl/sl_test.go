package sl_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
)

func TestErr_ReturnsCorrectAttr(t *testing.T) {
	err := errors.New("something went wrong")
	attr := sl.Err(err)

	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, slog.StringValue("something went wrong"), attr.Value)
}

func TestErr_NilError(t *testing.T) {
	assert.Panics(t, func() {
		_ = sl.Err(nil)
	})
}

func TestNewLogger_ProdIsJSONInfo(t *testing.T) {
	var buf bytes.Buffer
	log := sl.NewLogger(sl.EnvProd, &buf)

	log.Debug("hidden")
	log.Info("visible", slog.String("k", "v"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNewLogger_LocalIsText(t *testing.T) {
	var buf bytes.Buffer
	log := sl.NewLogger(sl.EnvLocal, &buf)

	log.Debug("debug line")

	assert.Contains(t, buf.String(), "msg=\"debug line\"")
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	log := sl.NewLogger(sl.EnvLocal, &buf)
	cl := sl.NewCronLogger(log)

	cl.Info("schedule", "entry", 1)
	cl.Error(errors.New("boom"), "panic", "job", "tick")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG msg=schedule entry=1")
	assert.Contains(t, out, "level=ERROR msg=panic error=boom job=tick")
}
