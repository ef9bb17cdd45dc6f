package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPassword(t *testing.T, pw []byte, err error) {
	t.Helper()
	old, oldFd := readPassword, stdinFd
	readPassword = func(int) ([]byte, error) { return pw, err }
	stdinFd = func() int { return 0 }
	t.Cleanup(func() { readPassword, stdinFd = old, oldFd })
}

func TestGetSecret(t *testing.T) {
	stubPassword(t, []byte("s3cret"), nil)

	var out bytes.Buffer
	got, err := GetSecret(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), got)
	assert.Equal(t, "Enter secret: \n", out.String())
}

func TestGetSecret_Error(t *testing.T) {
	stubPassword(t, nil, errors.New("boom"))

	var out bytes.Buffer
	_, err := GetSecret(&out)
	require.EqualError(t, err, "boom")
}

func TestGetSecret_Empty(t *testing.T) {
	stubPassword(t, []byte{}, nil)

	var out bytes.Buffer
	_, err := GetSecret(&out)
	require.Error(t, err)
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("hello world\n")), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name? ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("lastline")), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(bufio.NewReader(strings.NewReader(tt.in)), "Sure?", &out)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
