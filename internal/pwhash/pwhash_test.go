package pwhash

import (
	"strings"
	"testing"
)

// knownHash was generated by an existing deployment for the password
// "helloworld". It pins the on-disk encoding across implementations.
const knownHash = "AFTY5EVN7AX47ZL7UMH3BETYWFBTAV3XHR73CEFAJBPN2NIHPWD" +
	"ZHV2UQSMSPHSQQ2A2BFQBNC77VL7F2UKATQNJZGYLCSU6C43UQD" +
	"AQXWXSWNGAEPGIMG2F3QDKBXL3MRHY6K2BPID64ZR6LABLPVSF"

func TestRoundTrip(t *testing.T) {
	encoded, err := Generate("hunter2")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	info, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !Check("hunter2", info) {
		t.Error("Check() = false for the original password")
	}
	if Check("hunter3", info) {
		t.Error("Check() = true for a different password")
	}
	if Check("", info) {
		t.Error("Check() = true for an empty password")
	}
}

func TestKnownHash(t *testing.T) {
	info, err := Parse(knownHash)
	if err != nil {
		t.Fatalf("Parse(knownHash) error = %v", err)
	}

	if !Check("helloworld", info) {
		t.Error("Check() = false for the known password")
	}
	if Check("hElloworld", info) {
		t.Error("Check() = true for a wrong password")
	}
}

func TestGenerateUniqueSalts(t *testing.T) {
	a, err := Generate("same password")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, err := Generate("same password")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical, salt not random")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{
			name:    "Not base32",
			encoded: "!!not-base32!!",
		},
		{
			name:    "Empty",
			encoded: "",
		},
		{
			name:    "Truncated",
			encoded: knownHash[:40],
		},
		{
			name: "Wrong version",
			// First byte decodes to 0x02 instead of 0x01.
			encoded: "AJ" + knownHash[2:],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.encoded); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", tt.encoded)
			}
		})
	}
}

func TestEncodedLength(t *testing.T) {
	encoded, err := Generate("x")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// 95 raw bytes encode to exactly 152 base32 characters, no padding.
	if len(encoded) != 152 || strings.Contains(encoded, "=") {
		t.Errorf("encoded form %q has unexpected shape", encoded)
	}
}
