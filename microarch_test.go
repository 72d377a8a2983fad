package uica

import "testing"

func TestMicroArchConfigValidate(t *testing.T) {
	valid := testMicroArch()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for a well-formed config", err)
	}

	cases := []struct {
		name    string
		mutate  func(*MicroArchConfig)
	}{
		{"empty XEDName", func(c *MicroArchConfig) { c.XEDName = "" }},
		{"zero IQWidth", func(c *MicroArchConfig) { c.IQWidth = 0 }},
		{"zero IssueWidth", func(c *MicroArchConfig) { c.IssueWidth = 0 }},
		{"zero NDecoders", func(c *MicroArchConfig) { c.NDecoders = 0 }},
		{"zero DSBWidth", func(c *MicroArchConfig) { c.DSBWidth = 0 }},
		{"bad DSBBlockSize", func(c *MicroArchConfig) { c.DSBBlockSize = 48 }},
		{"empty AllPorts", func(c *MicroArchConfig) { c.AllPorts = nil }},
		{"LSD enabled without unroll func", func(c *MicroArchConfig) { c.LSDUnrolling = nil }},
		{"negative IssueDispatchDelay", func(c *MicroArchConfig) { c.IssueDispatchDelay = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testMicroArch()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want an error for %s", tc.name)
			}
		})
	}
}

func TestMicroArchPortIndex(t *testing.T) {
	cfg := testMicroArch()
	if idx := cfg.portIndex("2"); idx != 2 {
		t.Fatalf("portIndex(\"2\") = %d, want 2", idx)
	}
	if idx := cfg.portIndex("nope"); idx != -1 {
		t.Fatalf("portIndex(\"nope\") = %d, want -1", idx)
	}
}
