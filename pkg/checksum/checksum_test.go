package checksum

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const (
	helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	emptySum = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestCalculateSHA256(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "hello", input: "hello", want: helloSum},
		{name: "empty string", input: "", want: emptySum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSHA256(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("CalculateSHA256() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculateSHA256(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	t.Run("read error is propagated", func(t *testing.T) {
		if _, err := CalculateSHA256(errReader{}); err == nil {
			t.Error("CalculateSHA256() expected error from failing reader, got nil")
		}
	})
}

func TestBytesAndVerify(t *testing.T) {
	if got := Bytes([]byte("hello")); got != helloSum {
		t.Errorf("Bytes() = %q, want %q", got, helloSum)
	}
	if err := Verify([]byte("hello"), strings.ToUpper(helloSum)); err != nil {
		t.Errorf("Verify() with uppercase digest error: %v", err)
	}
	err := Verify([]byte("hello"), emptySum)
	if !errors.Is(err, ErrMismatch) {
		t.Errorf("Verify() error = %v, want ErrMismatch", err)
	}
}

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader("hello"))
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("passthrough = %q, want hello", data)
	}
	if r.N() != 5 {
		t.Errorf("N() = %d, want 5", r.N())
	}
	if r.Sum() != helloSum {
		t.Errorf("Sum() = %q, want %q", r.Sum(), helloSum)
	}
}

func TestFormatParseSums(t *testing.T) {
	names := []string{"backups/a.db", "backups/b.db"}
	sums := map[string]string{"backups/a.db": helloSum, "backups/b.db": emptySum}

	text := FormatSums(names, sums)
	want := helloSum + "  backups/a.db\n" + emptySum + "  backups/b.db\n"
	if text != want {
		t.Fatalf("FormatSums() = %q, want %q", text, want)
	}

	got, err := ParseSums(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ParseSums() error: %v", err)
	}
	if len(got) != 2 || got["backups/a.db"] != helloSum || got["backups/b.db"] != emptySum {
		t.Errorf("ParseSums() = %v", got)
	}
}

func TestParseSums(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    map[string]string
	}{
		{
			name:  "binary marker and blank lines",
			input: "\n" + strings.ToUpper(helloSum) + " *snap.db\n\n",
			want:  map[string]string{"snap.db": helloSum},
		},
		{name: "no separator", input: helloSum, wantErr: true},
		{name: "short digest", input: "abcd  snap.db", wantErr: true},
		{name: "non hex digest", input: strings.Repeat("z", 64) + "  snap.db", wantErr: true},
		{name: "missing name", input: helloSum + "  *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSums(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSums() expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSums() error: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseSums()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

// errReader is an io.Reader that always returns an error.
type errReader struct{}

func (errReader) Read(_ []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
