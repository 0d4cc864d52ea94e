package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/kunal/simd-stress/pkg/config"
	"github.com/kunal/simd-stress/pkg/stress"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_PrintsOneLinePerThread(t *testing.T) {
	out, err := execute(t, "--duration=-1", "-t", "3", "-i", "1", "--vector-bits", "128")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "instruction:vpmadd52huq throughput"); n != 3 {
		t.Errorf("got %d report lines, want 3:\n%s", n, out)
	}
}

func TestRun_UnknownKernelFails(t *testing.T) {
	out, err := execute(t, "-d", "1", "-t", "2", "-i", "3")
	if !errors.Is(err, stress.ErrUnknownKernel) {
		t.Errorf("error = %v, want ErrUnknownKernel", err)
	}
	if out != "" {
		t.Errorf("printed %q before failing", out)
	}
}

func TestRemote_RejectsOversizedRunLocally(t *testing.T) {
	for _, args := range [][]string{
		{"remote", "--duration=999999999"},
		{"remote", "-t", "100000"},
	} {
		if _, err := execute(t, args...); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("%v: error = %v, want ErrInvalid", args, err)
		}
	}
}

func TestConfigCmd_YAML(t *testing.T) {
	out, err := execute(t, "config", "-t", "4", "-i", "2", "--vector-bits", "256", "--pin")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"thread_count: 4", "instruction_type: 2", "vector_bits: 256", "pin: true", "duration: 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestKernelsCmd(t *testing.T) {
	out, err := execute(t, "kernels")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"nop_loop", "vpmadd52huq", "vfmadd231pd", "vector width:"} {
		if !strings.Contains(out, want) {
			t.Errorf("kernels output missing %q:\n%s", want, out)
		}
	}
}
