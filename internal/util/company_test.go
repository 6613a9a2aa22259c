package util

import "testing"

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TechCorp Inc.", "techcorp"},
		{"The TechCorp, Inc.", "techcorp"},
		{"techcorp", "techcorp"},
		{"DataSoft LLC", "datasoft"},
		{"DataSoft L.L.C.", "datasoft"},
		{"Alibaba Group Holding Ltd", "alibaba"},
		{"Johnson & Johnson", "johnson and johnson"},
		{"TechCorp's", "techcorp"},
		{"Group Inc", "group"},
		{"Rolls-Royce Holdings plc", "rolls-royce"},
	}
	for _, tt := range tests {
		if got := NormalizeCompany(tt.in); got != tt.want {
			t.Errorf("NormalizeCompany(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
