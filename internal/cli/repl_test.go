package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls [][]string
	err   error
}

func (f *fakeExec) Execute(ctx context.Context, args []string) error {
	f.calls = append(f.calls, args)
	return f.err
}

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesAndExits(t *testing.T) {
	lines := capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"",
		"can-read 1",
		"record 2 --at 2025-01-01T08:00:00Z",
		"repl",
		"exit",
		"stats",
	}, "\n")
	exec := &fakeExec{}

	runREPL(context.Background(), exec, bufio.NewScanner(strings.NewReader(input)))

	assert.Equal(t, [][]string{
		{"can-read", "1"},
		{"record", "2", "--at", "2025-01-01T08:00:00Z"},
	}, exec.calls)
	assert.Contains(t, *lines, replHelp)
	assert.Contains(t, *lines, "Already in interactive mode")
	assert.Equal(t, "Bye!", (*lines)[len(*lines)-1])
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	lines := capturePrintln(t)

	exec := &fakeExec{err: errors.New("boom")}
	runREPL(context.Background(), exec, bufio.NewScanner(strings.NewReader("stats\nstats\n")))

	assert.Len(t, exec.calls, 2)
	assert.Equal(t, 2, strings.Count(strings.Join(*lines, "\n"), "Error: boom"))
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	capturePrintln(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &fakeExec{}
	runREPL(ctx, exec, bufio.NewScanner(strings.NewReader("stats\n")))

	assert.Empty(t, exec.calls)
}

func TestScannerReader(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("first\nsecond\n"))
	r := &scannerReader{sc: sc}

	got, err := GetSimpleText(bufio.NewReader(r), "?", &strings.Builder{})
	assert.NoError(t, err)
	assert.Equal(t, "first", got)
}
