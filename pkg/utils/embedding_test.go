package utils

import (
	"reflect"
	"testing"
)

func TestParseEmbedding(t *testing.T) {
	tests := []struct {
		in      string
		want    []float32
		wantErr bool
	}{
		{"1,0,0,0", []float32{1, 0, 0, 0}, false},
		{"0.5, -1.25 ,2", []float32{0.5, -1.25, 2}, false},
		{"[0.1 0.2]", []float32{0.1, 0.2}, false},
		{"", nil, false},
		{"1,abc", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseEmbedding(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEmbedding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseEmbedding(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
