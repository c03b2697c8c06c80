package erp

import "regexp"

// Channels named like E12 are the dense-array electrodes; everything else is
// treated as a labelled channel worth annotating.
var electrodePattern = regexp.MustCompile(`E\d+`)

// DefaultSelection returns the indexes of channels whose names do not contain
// an E<number> electrode label. When every channel matches, the middle channel
// is selected so there is always something to annotate.
func DefaultSelection(channels []string) []int {
	selected := make([]int, 0, len(channels))
	for i, name := range channels {
		if !electrodePattern.MatchString(name) {
			selected = append(selected, i)
		}
	}
	if len(selected) == 0 && len(channels) > 0 {
		selected = append(selected, len(channels)/2)
	}
	return selected
}

// SelectionFromMask converts a per-channel flag list into indexes. It returns
// false when the mask does not cover every channel.
func SelectionFromMask(mask []bool, channelCount int) ([]int, bool) {
	if len(mask) != channelCount {
		return nil, false
	}
	selected := make([]int, 0, channelCount)
	for i, on := range mask {
		if on {
			selected = append(selected, i)
		}
	}
	return selected, true
}

// Mask converts indexes into a per-channel flag list.
func Mask(selected []int, channelCount int) []bool {
	mask := make([]bool, channelCount)
	for _, idx := range selected {
		if idx >= 0 && idx < channelCount {
			mask[idx] = true
		}
	}
	return mask
}

// SelectionByName resolves channel names against a recording. Unknown names
// are returned separately.
func (r *Recording) SelectionByName(names []string) (selected []int, unknown []string) {
	for _, name := range names {
		if idx := r.ChannelIndex(name); idx >= 0 {
			selected = append(selected, idx)
			continue
		}
		unknown = append(unknown, name)
	}
	return selected, unknown
}
