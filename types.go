// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package acquisition

import (
	"slices"
	"time"
)

// Unknown is recorded for a SampleFrequency or Bits that was not given.
const Unknown = -1

// FileType is the value of the /Type attribute of every acquisition file.
const FileType = "Acquisition Container"

// Paths of the objects in an acquisition file.
const (
	pathType        = "/Type"
	pathVersion     = "/Version"
	pathSoftware    = "/Software"
	pathInfo        = "/Info"
	pathDataType    = "/Data/Type"
	pathStorageType = "/Data/StorageType"
	pathData        = "/Data/Data"
)

// Metadata describes an acquisition: the device, how it was triggered,
// and the channels being recorded.
type Metadata struct {
	VendorDriverDescription string     // Description of the vendor driver
	DeviceName              string     // Name of the acquisition device
	DeviceID                string     // Identification of the device
	TriggerType             string     // How the acquisition was triggered
	StartTime               [6]float64 // Year, month, day, hour, minute, second
	SampleFrequency         float64    // Samples per second per channel, zero for Unknown
	InputType               string     // Input configuration (e.g. differential)
	NumberChannels          int64      // Number of channels, at least 1
	Bits                    int64      // Resolution of the converter in bits, zero for Unknown
	NumberSamples           int64      // Rows in the data block, maintained by the writer
	Channels                ChannelSet // Per-channel details
}

// ChannelSet holds the per-channel details. Every slice has one entry per
// channel; nil slices are filled with defaults during normalization.
type ChannelSet struct {
	Mappings    []int64      // Device channel index
	Names       []string     // Channel name
	InputRanges [][2]float64 // Input range (low, high)
	Offsets     []float64    // Added after scaling on read
	Scalings    []float64    // Multiplier applied on read
	Units       []string     // Physical unit after decoding
}

func (cs ChannelSet) clone() ChannelSet {
	return ChannelSet{
		Mappings:    slices.Clone(cs.Mappings),
		Names:       slices.Clone(cs.Names),
		InputRanges: slices.Clone(cs.InputRanges),
		Offsets:     slices.Clone(cs.Offsets),
		Scalings:    slices.Clone(cs.Scalings),
		Units:       slices.Clone(cs.Units),
	}
}

func (md Metadata) clone() Metadata {
	md.Channels = md.Channels.clone()
	return md
}

// StartTimeOf converts t to the start time vector stored in Metadata.
func StartTimeOf(t time.Time) [6]float64 {
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return [6]float64{
		float64(t.Year()), float64(t.Month()), float64(t.Day()),
		float64(t.Hour()), float64(t.Minute()), sec,
	}
}
