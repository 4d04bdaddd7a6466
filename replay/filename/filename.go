// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package filename parses and builds structured raw data file names.
//
// A structured name has the form:
//
//	<project>.<run>.<streamType>_<streamName>.<step>.<dataType>._lb<lumiblock>._<application>._<sequence>.<extension>
//
// for example "data22.00008023.physics_Main.daq.RAW._lb0012._SFO-1._0001.data".
// The run number is eight digits, and the lumiblock and sequence numbers are
// four digits each. A name may be preceded by a directory or source prefix,
// which is preserved.
package filename

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNameNotInterpretable is returned when a name does not follow the
// structured grammar, or when accessing the fields of such a name.
var ErrNameNotInterpretable = errors.New("name not interpretable")

// Field limits.
const (
	MaxRunNumber = 99999999
	MaxLumiBlock = 9999
	MaxSequence  = 9999
)

// Parts are the components of a structured name.
type Parts struct {
	// Dir is an optional prefix preceding the name, including its trailing
	// separator (for example "/data/" or "s3:bucket/raw/").
	Dir string

	Project        string
	RunNumber      uint32
	StreamType     string
	StreamName     string
	ProductionStep string
	DataType       string
	LumiBlock      int
	Application    string
	Sequence       int
	Extension      string
}

func (p *Parts) validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"project", p.Project},
		{"stream type", p.StreamType},
		{"stream name", p.StreamName},
		{"production step", p.ProductionStep},
		{"data type", p.DataType},
		{"application", p.Application},
		{"extension", p.Extension},
	} {
		if f.value == "" {
			return errors.Wrapf(ErrNameNotInterpretable, "empty %s", f.name)
		}
		if strings.ContainsAny(f.value, "./") {
			return errors.Wrapf(ErrNameNotInterpretable, "%s %q contains a separator", f.name, f.value)
		}
	}
	if strings.Contains(p.StreamType, "_") {
		return errors.Wrapf(ErrNameNotInterpretable, "stream type %q contains '_'", p.StreamType)
	}

	switch {
	case p.RunNumber > MaxRunNumber:
		return errors.Wrapf(ErrNameNotInterpretable, "run number %d out of range", p.RunNumber)
	case p.LumiBlock < 0 || p.LumiBlock > MaxLumiBlock:
		return errors.Wrapf(ErrNameNotInterpretable, "lumiblock %d out of range", p.LumiBlock)
	case p.Sequence < 0 || p.Sequence > MaxSequence:
		return errors.Wrapf(ErrNameNotInterpretable, "sequence %d out of range", p.Sequence)
	}
	return nil
}

func (p *Parts) coreName() string {
	return fmt.Sprintf("%s%s.%08d.%s_%s.%s.%s._lb%04d._%s",
		p.Dir, p.Project, p.RunNumber, p.StreamType, p.StreamName, p.ProductionStep, p.DataType,
		p.LumiBlock, p.Application)
}

func (p *Parts) String() string {
	return fmt.Sprintf("%s._%04d.%s", p.coreName(), p.Sequence, p.Extension)
}

// Name is a file name that may or may not follow the structured grammar.
//
// The zero value is an invalid, empty name.
type Name struct {
	raw   string
	parts Parts
	valid bool
}

// Parse parses s.
//
// If s is not a structured name, Parse returns an error wrapping
// ErrNameNotInterpretable, along with an invalid Name that still renders as s.
func Parse(s string) (Name, error) {
	n := Name{raw: s}

	dir, base := "", s
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		dir, base = s[:idx+1], s[idx+1:]
	}

	tokens := strings.Split(base, ".")
	if len(tokens) != 9 {
		return n, errors.Wrapf(ErrNameNotInterpretable, "%q has %d components, expected 9", base, len(tokens))
	}

	p := Parts{
		Dir:            dir,
		Project:        tokens[0],
		ProductionStep: tokens[3],
		DataType:       tokens[4],
		Extension:      tokens[8],
	}

	run, err := parseDigits(tokens[1], "", 8)
	if err != nil {
		return n, errors.Wrap(err, "run number")
	}
	p.RunNumber = uint32(run)

	stream := strings.SplitN(tokens[2], "_", 2)
	if len(stream) != 2 {
		return n, errors.Wrapf(ErrNameNotInterpretable, "stream %q has no '_'", tokens[2])
	}
	p.StreamType, p.StreamName = stream[0], stream[1]

	if p.LumiBlock, err = parseDigits(tokens[5], "_lb", 4); err != nil {
		return n, errors.Wrap(err, "lumiblock")
	}
	if !strings.HasPrefix(tokens[6], "_") {
		return n, errors.Wrapf(ErrNameNotInterpretable, "application %q lacks '_' prefix", tokens[6])
	}
	p.Application = tokens[6][1:]
	if p.Sequence, err = parseDigits(tokens[7], "_", 4); err != nil {
		return n, errors.Wrap(err, "sequence")
	}

	if err := p.validate(); err != nil {
		return n, err
	}
	if rebuilt := p.String(); rebuilt != s {
		return n, errors.Wrapf(ErrNameNotInterpretable, "%q rebuilds as %q", s, rebuilt)
	}

	n.parts, n.valid = p, true
	return n, nil
}

func parseDigits(tok, prefix string, width int) (int, error) {
	if !strings.HasPrefix(tok, prefix) {
		return 0, errors.Wrapf(ErrNameNotInterpretable, "%q lacks %q prefix", tok, prefix)
	}
	digits := tok[len(prefix):]
	if len(digits) != width {
		return 0, errors.Wrapf(ErrNameNotInterpretable, "%q is not %d digits", digits, width)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(ErrNameNotInterpretable, "%q is not numeric", digits)
		}
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, errors.Wrapf(ErrNameNotInterpretable, "%q: %s", digits, err)
	}
	return v, nil
}

// FromParts builds a Name from its components.
func FromParts(p Parts) (Name, error) {
	if err := p.validate(); err != nil {
		return Name{}, err
	}
	return Name{raw: p.String(), parts: p, valid: true}, nil
}

// MustFromParts is FromParts, panicking on error.
func MustFromParts(p Parts) Name {
	n, err := FromParts(p)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the full name, as parsed or built.
func (n Name) String() string { return n.raw }

// Valid returns true if n is a structured name.
func (n Name) Valid() bool { return n.valid }

func (n Name) check() error {
	if !n.valid {
		return errors.Wrapf(ErrNameNotInterpretable, "%q", n.raw)
	}
	return nil
}

// Parts returns n's components.
func (n Name) Parts() (Parts, error) {
	if err := n.check(); err != nil {
		return Parts{}, err
	}
	return n.parts, nil
}

// RunNumber returns n's run number.
func (n Name) RunNumber() (uint32, error) {
	if err := n.check(); err != nil {
		return 0, err
	}
	return n.parts.RunNumber, nil
}

// LumiBlock returns n's lumiblock number.
func (n Name) LumiBlock() (int, error) {
	if err := n.check(); err != nil {
		return 0, err
	}
	return n.parts.LumiBlock, nil
}

// Sequence returns n's sequence number.
func (n Name) Sequence() (int, error) {
	if err := n.check(); err != nil {
		return 0, err
	}
	return n.parts.Sequence, nil
}

// Base returns n without its directory prefix.
func (n Name) Base() (string, error) {
	if err := n.check(); err != nil {
		return "", err
	}
	p := n.parts
	p.Dir = ""
	return p.String(), nil
}

// CoreName returns the portion of n shared by every file of its sequence:
// everything except the sequence number and extension.
func (n Name) CoreName() (string, error) {
	if err := n.check(); err != nil {
		return "", err
	}
	return n.parts.coreName(), nil
}

// WithSequence returns a copy of n with its sequence number replaced.
func (n Name) WithSequence(seq int) (Name, error) {
	if err := n.check(); err != nil {
		return Name{}, err
	}
	p := n.parts
	p.Sequence = seq
	return FromParts(p)
}

// Next returns the name of the following file in n's sequence.
func (n Name) Next() (Name, error) {
	seq, err := n.Sequence()
	if err != nil {
		return Name{}, err
	}
	return n.WithSequence(seq + 1)
}
