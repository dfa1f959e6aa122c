package cli

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/fltrain/client"
	"github.com/absmach/fltrain/pkg/dataset"
	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/worker"
	"github.com/absmach/fltrain/worker/api"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRoot() *cobra.Command {
	color.NoColor = true

	root := &cobra.Command{Use: "flctl", SilenceErrors: true, SilenceUsage: true}
	AddConnectionFlags(root)
	root.AddCommand(NewModelCmd(), NewTrainCmd(), NewDatasetsCmd(), NewFederateCmd(), NewEventsCmd())

	return root
}

func execute(t *testing.T, args ...string) (string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRoot()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		t.Fatalf("Unexpected execute error: %v", err)
	}

	return stdout.String(), stderr.String()
}

func executeFail(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRoot()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Expected error %v, got %v", ErrCommandFailed, err)
	}

	return stderr.String(), err
}

func startWorker(t *testing.T) (string, string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := dataset.NewStore()
	for _, d := range dataset.Samples() {
		if err := store.Add(d); err != nil {
			t.Fatalf("Failed to add dataset: %v", err)
		}
	}

	svc := worker.NewService("alice", store, nil, nil, 0, logger)
	srv := httptest.NewServer(api.MakeHandler(svc, 0, logger))
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to parse server address: %v", err)
	}

	return host, port
}

func TestModelInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cbor")

	stdout, stderr := execute(t, "model", "init", "--layers", "2,3,1", "--activations", "relu,sigmoid", "--seed", "42", "--out", path)
	if stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}
	if !strings.Contains(stdout, `"params": 13`) {
		t.Errorf("Expected 13 params in summary, got %s", stdout)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read model file: %v", err)
	}
	m, err := model.Decode(data)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if m.InputSize() != 2 || m.OutputSize() != 1 {
		t.Errorf("Expected 2x1 model, got %dx%d", m.InputSize(), m.OutputSize())
	}

	stdout, stderr = execute(t, "model", "show", path)
	if stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}
	if !strings.Contains(stdout, `"activation": "sigmoid"`) {
		t.Errorf("Expected layer summary, got %s", stdout)
	}
}

func TestModelInitErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing out", args: []string{"model", "init"}},
		{name: "activation count", args: []string{"model", "init", "--layers", "2,3,1", "--activations", "relu", "--out", filepath.Join(dir, "a.cbor")}},
		{name: "unknown activation", args: []string{"model", "init", "--activations", "softplus", "--out", filepath.Join(dir, "b.cbor")}},
		{name: "show garbage", args: []string{"model", "show", filepath.Join(dir, "missing.cbor")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stderr, _ := executeFail(t, tt.args...)
			if !strings.Contains(stderr, "error:") {
				t.Errorf("Expected an error, got %q", stderr)
			}
		})
	}
}

func TestTrainAndDatasets(t *testing.T) {
	host, port := startWorker(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "model.cbor")
	out := filepath.Join(dir, "trained.cbor")

	if _, stderr := execute(t, "model", "init", "--layers", "2,1", "--activations", "identity", "--seed", "9", "--out", in); stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}

	stdout, stderr := execute(t, "train", "--host", host, "--port", port, "--id", "alice",
		"--model", in, "--dataset", dataset.Linear, "--iterations", "3", "--out", out)
	if stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}
	if got := strings.Count(stdout, "iteration"); got != 3 {
		t.Errorf("Expected 3 iteration lines, got %d in %s", got, stdout)
	}

	before, _ := os.ReadFile(in)
	after, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read trained model: %v", err)
	}
	mb, _ := model.Decode(before)
	ma, err := model.Decode(after)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if ma.Equal(mb) {
		t.Error("Expected the trained model to differ from the initial one")
	}

	stdout, stderr = execute(t, "datasets", "--host", host, "--port", port, "--id", "alice")
	if stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}
	if !strings.Contains(stdout, `"key": "xor"`) {
		t.Errorf("Expected xor dataset, got %s", stdout)
	}
}

func TestTrainRequiresWorkerID(t *testing.T) {
	t.Setenv("FL_COORDINATOR_ID", "")

	stderr, _ := executeFail(t, "train", "--model", "m.cbor", "--dataset", dataset.XOR)
	if !strings.Contains(stderr, "--id is required") {
		t.Errorf("Expected missing id error, got %q", stderr)
	}
}

func TestTrainRemoteFailure(t *testing.T) {
	host, port := startWorker(t)
	in := filepath.Join(t.TempDir(), "model.cbor")

	if _, stderr := execute(t, "model", "init", "--layers", "2,1", "--activations", "identity", "--out", in); stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}

	stderr, err := executeFail(t, "train", "--host", host, "--port", port, "--id", "alice",
		"--model", in, "--dataset", "mnist", "--iterations", "1")
	if !errors.Is(err, pkgerrors.ErrDatasetNotFound) {
		t.Errorf("Expected error %v, got %v", pkgerrors.ErrDatasetNotFound, err)
	}
	if !strings.Contains(stderr, "dataset not found") {
		t.Errorf("Expected the failure to be printed, got %q", stderr)
	}
}

func TestFederate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "model.cbor")
	out := filepath.Join(dir, "global.cbor")

	if _, stderr := execute(t, "model", "init", "--layers", "2,1", "--activations", "identity", "--seed", "5", "--out", in); stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}

	h1, p1 := startWorker(t)
	h2, p2 := startWorker(t)

	stdout, stderr := execute(t, "federate",
		"-w", "alice@"+net.JoinHostPort(h1, p1),
		"-w", "alice@"+net.JoinHostPort(h2, p2),
		"-m", in, "-d", dataset.Linear, "--rounds", "2", "--out", out)
	if stderr != "" {
		t.Fatalf("Unexpected error output: %s", stderr)
	}
	if got := strings.Count(stdout, "(2/2 workers)"); got != 2 {
		t.Errorf("Expected 2 completed rounds, got %d in %s", got, stdout)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("Expected global model at %s: %v", out, err)
	}
}

func TestParseWorker(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantID   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "valid", target: "alice@10.0.0.1:8777", wantID: "alice", wantHost: "10.0.0.1", wantPort: 8777},
		{name: "missing id", target: "10.0.0.1:8777", wantErr: true},
		{name: "missing port", target: "alice@10.0.0.1", wantErr: true},
		{name: "bad port", target: "alice@10.0.0.1:http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := parseWorker(tt.target, client.Config{WorkloadKey: "k"})
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}

				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if cc.ID != tt.wantID || cc.Host != tt.wantHost || cc.Port != tt.wantPort {
				t.Errorf("Expected %s@%s:%d, got %s@%s:%d", tt.wantID, tt.wantHost, tt.wantPort, cc.ID, cc.Host, cc.Port)
			}
			if cc.WorkloadKey != "k" {
				t.Errorf("Expected base settings to carry over, got %+v", cc)
			}
		})
	}
}

func TestEventsRequiresBroker(t *testing.T) {
	stderr, _ := executeFail(t, "events")
	if !strings.Contains(stderr, "mqtt-url is required") {
		t.Errorf("Expected missing broker error, got %q", stderr)
	}
}
