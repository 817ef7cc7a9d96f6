package conformance

import (
	"os"
	"testing"
)

// testDataDir holds the GameboyCPUTests v2 fixtures (one *.json per opcode),
// not vendored into this pack. Tests skip gracefully when it's absent,
// matching the blargg/integration suites' pattern for fixtures that aren't
// shipped in the repo.
const testDataDir = "../../test-roms/cpu-tests/v2"

func TestConformanceSuite(t *testing.T) {
	if _, err := os.Stat(testDataDir); os.IsNotExist(err) {
		t.Skipf("CPU conformance fixtures not found: %s", testDataDir)
	}

	suite, err := LoadTestDir(testDataDir)
	if err != nil {
		t.Fatalf("failed to load conformance suite: %v", err)
	}

	for opcode, cases := range suite {
		opcode, cases := opcode, cases
		t.Run(opcode, func(t *testing.T) {
			for _, tc := range cases {
				tc := tc
				t.Run(tc.Name, func(t *testing.T) {
					mismatches, err := RunTestCase(tc)
					if err != nil {
						t.Fatalf("%v", err)
					}
					for _, m := range mismatches {
						t.Errorf("%s", m)
					}
				})
			}
		})
	}
}
