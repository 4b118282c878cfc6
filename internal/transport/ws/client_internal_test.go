package ws

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestUnbuffer(t *testing.T) {
	tests := []struct {
		name     string
		buffered string
		want     string
	}{
		{name: "no reader", want: "ghi"},
		{name: "nothing buffered", buffered: "", want: "ghi"},
		{name: "frames after handshake", buffered: "abcdef", want: "abcdefghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var br *bufio.Reader
			if tt.name != "no reader" {
				br = bufio.NewReaderSize(strings.NewReader(tt.buffered), 16)
				br.Peek(len(tt.buffered))
				if got := br.Buffered(); got != len(tt.buffered) {
					t.Fatalf("Buffered() = %d, want %d", got, len(tt.buffered))
				}
			}
			got, err := io.ReadAll(unbuffer(br, strings.NewReader("ghi")))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("read %q, want %q", got, tt.want)
			}
		})
	}
}
