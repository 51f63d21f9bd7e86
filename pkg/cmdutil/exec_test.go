package cmdutil

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    ExecOptions
		cmd     []string
		wantErr bool
	}{
		{
			"successful command",
			ExecOptions{},
			[]string{"echo", "hello"},
			false,
		},
		{
			"command with args",
			ExecOptions{},
			[]string{"echo", "hello", "world"},
			false,
		},
		{
			"command that fails",
			ExecOptions{},
			[]string{"ls", "/nonexistent/directory/path"},
			true,
		},
		{
			"empty command",
			ExecOptions{},
			[]string{},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(ctx, tt.opts, tt.cmd)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if result == nil {
					t.Error("Run() returned nil result for successful command")
				}
				if result.Duration == 0 {
					t.Error("Run() did not record execution duration")
				}
			}
		})
	}
}

func TestRun_CapturesOutput(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"echo", "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(string(result.Output), "hello") {
		t.Errorf("Run() output = %q, should contain 'hello'", result.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	opts := ExecOptions{Timeout: 100 * time.Millisecond}

	_, err := Run(context.Background(), opts, []string{"sleep", "5"})
	if err == nil {
		t.Error("Run() should fail when command exceeds timeout")
	}
}

func TestRunSimple(t *testing.T) {
	output, err := RunSimple(context.Background(), "", []string{"echo", "simple"})
	if err != nil {
		t.Fatalf("RunSimple() error = %v", err)
	}

	if !strings.Contains(string(output), "simple") {
		t.Errorf("RunSimple() output = %q, should contain 'simple'", output)
	}
}

func TestRunSimple_EmptyCommand(t *testing.T) {
	output, err := RunSimple(context.Background(), "", nil)
	if err == nil {
		t.Error("RunSimple() should fail for an empty command")
	}
	if output != nil {
		t.Errorf("RunSimple() output = %q, want nil", output)
	}
}

func TestParseCommandString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			"simple command",
			"git status",
			[]string{"git", "status"},
			false,
		},
		{
			"quoted argument",
			`git commit -m "my message"`,
			[]string{"git", "commit", "-m", "my message"},
			false,
		},
		{
			"single quotes",
			`echo 'hello world'`,
			[]string{"echo", "hello world"},
			false,
		},
		{
			"empty string",
			"",
			nil,
			true,
		},
		{
			"unbalanced quote",
			`echo "oops`,
			nil,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommandString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCommandString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseCommandString() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseCommandString()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{
			"simple command",
			[]string{"git", "status"},
			"git status",
		},
		{
			"argument with spaces",
			[]string{"git", "commit", "-m", "my message"},
			"git commit -m 'my message'",
		},
		{
			"empty command",
			[]string{},
			"<empty command>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatCommand(tt.parts)
			if got != tt.want {
				t.Errorf("FormatCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}
