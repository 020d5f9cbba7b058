// Package channelmap maps logical buffer channels to and from 1-based
// hardware channels. Resolution validates a mapping once before streaming;
// the Apply functions run inside the real-time callback and do not allocate.
package channelmap

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/errors"
)

// Map is an ordered list of 1-based hardware channels. Entry i names the
// hardware channel that logical channel i is routed to or read from.
type Map []int

// Parse reads a comma or space separated channel list such as "1,2,4".
func Parse(s string) (Map, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	m := make(Map, 0, len(fields))
	for _, f := range fields {
		ch, err := strconv.Atoi(f)
		if err != nil {
			return nil, mismatch(nil, "invalid channel %q", f)
		}
		m = append(m, ch)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Sequential returns the map 1..n.
func Sequential(n int) Map {
	m := make(Map, n)
	for i := range m {
		m[i] = i + 1
	}
	return m
}

// Validate checks that every entry is at least 1 and no channel repeats.
func (m Map) Validate() error {
	for i, ch := range m {
		if ch < 1 {
			return mismatch(m, "channel %d is not 1-based", ch)
		}
		if slices.Contains(m[:i], ch) {
			return mismatch(m, "channel %d is mapped more than once", ch)
		}
	}
	return nil
}

// Highest returns the largest channel number, 0 for an empty map.
func (m Map) Highest() int {
	if len(m) == 0 {
		return 0
	}
	return slices.Max(m)
}

func (m Map) String() string {
	parts := make([]string, len(m))
	for i, ch := range m {
		parts[i] = strconv.Itoa(ch)
	}
	return strings.Join(parts, ",")
}

// Output is a resolved playback mapping.
type Output struct {
	Mapping  Map
	Channels int   // channels the stream is opened with
	Silent   []int // 1-based channels that are zero filled
}

// ResolveOutput validates mapping for a source of dataChannels played on a
// device with deviceChannels outputs. A nil mapping routes channels 1..n in
// order. A mono source is broadcast to every mapped channel. An explicit
// mapping of exactly channel 1 on a device with two or more outputs opens two
// channels and silences the second, so stereo-only host APIs do not duplicate
// the mono signal.
func ResolveOutput(mapping Map, dataChannels, deviceChannels int) (Output, error) {
	explicit := mapping != nil
	if !explicit {
		mapping = Sequential(dataChannels)
	}
	if err := mapping.Validate(); err != nil {
		return Output{}, err
	}
	if len(mapping) == 0 {
		return Output{}, mismatch(mapping, "no output channels")
	}
	if len(mapping) > deviceChannels || mapping.Highest() > deviceChannels {
		return Output{}, mismatch(mapping, "device has %d output channels", deviceChannels)
	}
	if dataChannels != 1 && dataChannels != len(mapping) {
		return Output{}, mismatch(mapping, "%d data channels cannot be mapped to %d outputs", dataChannels, len(mapping))
	}

	channels := mapping.Highest()
	if explicit && len(mapping) == 1 && mapping[0] == 1 && deviceChannels >= 2 {
		channels = 2
	}

	var silent []int
	for ch := 1; ch <= channels; ch++ {
		if !slices.Contains(mapping, ch) {
			silent = append(silent, ch)
		}
	}
	return Output{Mapping: mapping, Channels: channels, Silent: silent}, nil
}

// Input is a resolved capture mapping.
type Input struct {
	Mapping Map
	// Channels is the number of logical buffer channels.
	Channels int
	// DeviceChannels is the number of channels the stream is opened with.
	DeviceChannels int
}

// ResolveInput validates mapping against a device with deviceChannels
// inputs. A nil mapping records every input channel.
func ResolveInput(mapping Map, deviceChannels int) (Input, error) {
	if mapping == nil {
		mapping = Sequential(deviceChannels)
	}
	if err := mapping.Validate(); err != nil {
		return Input{}, err
	}
	if len(mapping) == 0 {
		return Input{}, mismatch(mapping, "no input channels")
	}
	if len(mapping) > deviceChannels || mapping.Highest() > deviceChannels {
		return Input{}, mismatch(mapping, "device has %d input channels", deviceChannels)
	}
	return Input{Mapping: mapping, Channels: len(mapping), DeviceChannels: mapping.Highest()}, nil
}

// ApplyOutput copies source channel i into output channel mapping[i] and
// zero fills the silent channels. A mono source feeds every mapped channel.
// Frames beyond the shorter block are left untouched.
func ApplyOutput(out, src audiocore.Block, mapping Map, silent []int) {
	for i, ch := range mapping {
		srcCh := i
		if src.Channels == 1 {
			srcCh = 0
		}
		out.CopyChannel(ch-1, src, srcCh)
	}
	for _, ch := range silent {
		out.ZeroChannel(ch - 1)
	}
}

// ApplyInput copies input channel mapping[i] into destination channel i.
func ApplyInput(dst, in audiocore.Block, mapping Map) {
	for i, ch := range mapping {
		dst.CopyChannel(i, in, ch-1)
	}
}

// Apply routes src into out with the resolved mapping.
func (o Output) Apply(out, src audiocore.Block) {
	ApplyOutput(out, src, o.Mapping, o.Silent)
}

// Apply routes the mapped channels of in into dst.
func (in Input) Apply(dst, src audiocore.Block) {
	ApplyInput(dst, src, in.Mapping)
}

func mismatch(m Map, format string, args ...any) error {
	return errors.New(fmt.Errorf(format, args...)).
		Component("channelmap").
		Category(errors.CategoryChannelMapping).
		Context("mapping", m.String()).
		Build()
}
