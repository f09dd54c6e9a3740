package memory

import (
	"bytes"
	_ "embed"
)

//go:embed fixtures/tourism.yaml
var sampleFixture []byte

// SampleFixture returns the bundled tourism program fixture.
func SampleFixture() (*Fixture, error) {
	return DecodeFixture(bytes.NewReader(sampleFixture))
}

// Sample returns a store seeded with the bundled tourism program.
func Sample(opts ...ApplyOptions) (*Store, error) {
	fx, err := SampleFixture()
	if err != nil {
		return nil, err
	}
	return fx.Build(opts...)
}
