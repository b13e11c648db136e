package sequence

import (
	"sort"
	"strconv"
	"strings"
)

// channelWeights biases the preferred-channel pick per channel. All weights
// are currently 1; the map exists so a channel can be boosted without
// touching the selection code.
var channelWeights = map[string]float64{}

func weightFor(channel string) float64 {
	if w, ok := channelWeights[channel]; ok {
		return w
	}
	return 1
}

// PreferenceEntry is one channel usage count.
type PreferenceEntry struct {
	Channel string
	Count   int
}

// Preference is a typed per-contact channel usage map. Entry order is
// preserved from the stored string so equal counts resolve to the channel
// recorded first.
type Preference struct {
	Entries []PreferenceEntry
}

// DecodePreference parses a stored channel preference string.
// The format is comma-separated "channel:count" pairs. A legacy bare channel
// name (no colon) is read as that channel with count 1. Malformed fragments
// are dropped rather than erroring.
func DecodePreference(stored string) Preference {
	var p Preference
	if strings.TrimSpace(stored) == "" {
		return p
	}

	seen := make(map[string]int) // channel -> index in Entries
	for _, part := range strings.Split(stored, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		channel := part
		count := 1
		if i := strings.IndexByte(part, ':'); i >= 0 {
			channel = strings.TrimSpace(part[:i])
			n, err := strconv.Atoi(strings.TrimSpace(part[i+1:]))
			if err != nil || n < 0 {
				continue
			}
			count = n
		}
		if channel == "" {
			continue
		}

		if idx, ok := seen[channel]; ok {
			p.Entries[idx].Count += count
			continue
		}
		seen[channel] = len(p.Entries)
		p.Entries = append(p.Entries, PreferenceEntry{Channel: channel, Count: count})
	}
	return p
}

// Encode serializes the preference as "channel:count" pairs sorted by count
// descending. Ties keep the existing entry order.
func (p Preference) Encode() string {
	if len(p.Entries) == 0 {
		return ""
	}

	entries := make([]PreferenceEntry, len(p.Entries))
	copy(entries, p.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Channel+":"+strconv.Itoa(e.Count))
	}
	return strings.Join(parts, ",")
}

// Preferred returns the channel with the highest weighted count, or ""
// when the preference is empty. Equal weighted counts resolve to the
// channel recorded first.
func (p Preference) Preferred() string {
	best := ""
	bestScore := 0.0
	for _, e := range p.Entries {
		score := float64(e.Count) * weightFor(e.Channel)
		if score > bestScore {
			best = e.Channel
			bestScore = score
		}
	}
	return best
}

// RecordSend increments the used channel's count and returns the
// re-serialized preference string. Pure: the same inputs always yield the
// same output.
func RecordSend(stored, channel string) string {
	p := DecodePreference(stored)
	for i := range p.Entries {
		if p.Entries[i].Channel == channel {
			p.Entries[i].Count++
			return p.Encode()
		}
	}
	p.Entries = append(p.Entries, PreferenceEntry{Channel: channel, Count: 1})
	return p.Encode()
}

// PreferredChannel is a convenience over DecodePreference().Preferred().
func PreferredChannel(stored string) string {
	return DecodePreference(stored).Preferred()
}
