// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package eventfile

import (
	"github.com/danjacques/gorawevent/protocol/compress"

	"github.com/spf13/pflag"
)

// CompressionFlag is a pflag.Value implementation that stores a compression
// code.
type CompressionFlag compress.Code

var _ pflag.Value = (*CompressionFlag)(nil)

func (cf *CompressionFlag) String() string { return compress.Code(*cf).String() }

// Set implements pflag.Value.
func (cf *CompressionFlag) Set(v string) error {
	e, err := compress.ByName(v)
	if err != nil {
		return err
	}
	*cf = CompressionFlag(e.Code())
	return nil
}

// Type implements pflag.Value.
func (cf *CompressionFlag) Type() string { return "compress.Code" }

// Value returns the compression code held by this flag.
func (cf CompressionFlag) Value() compress.Code { return compress.Code(cf) }

// CompressionFlagValues returns the list of possible values for a
// CompressionFlag.
func CompressionFlagValues() string { return compress.Names() }

// AddFlags adds flags that populate cfg to fs.
func (cfg *WriterConfig) AddFlags(fs *pflag.FlagSet) {
	fs.Var((*CompressionFlag)(&cfg.Compression), "compression",
		"Compression for events that are not already compressed. Options are: "+CompressionFlagValues())
	fs.IntVar(&cfg.CompressionLevel, "compression-level", cfg.CompressionLevel,
		"Compression level, or 0 for the engine's default.")
	fs.BoolVar(&cfg.OmitMetadata, "omit-metadata", cfg.OmitMetadata,
		"Write bare event files with no metadata record.")
	fs.StringVar(&cfg.TempDir, "staging-dir", cfg.TempDir,
		"Directory to stage files in. Defaults to the destination's directory.")
}
